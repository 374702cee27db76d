package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/moodengine/internal/rpc"
)

// #region dial
func (a *app) dial(addr string) (*rpc.Client, error) {
	if addr == "" {
		cfg, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		addr = cfg.Server.Addr
	}
	return rpc.NewClient(addr)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

// #endregion dial

// #region state
func (a *app) stateCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "state <user-id>",
		Short: "Fetch a user's state and recovery estimates from moodd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := c.GetState(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, reply)
			}
			s := reply.State
			fmt.Fprintf(out, "User:      %s\nConflict:  %s\n", s.UserID, s.ConflictState)
			if s.ConflictStartedAt != nil {
				fmt.Fprintf(out, "Since:     %s\nTrigger:   %s\nProgress:  %.2f\n",
					s.ConflictStartedAt.Format(timeFmt), s.ConflictTrigger, s.RecoveryProgress())
			}
			fmt.Fprintf(out, "Affect:    arousal=%.2f valence=%.2f dominance=%.2f intimacy=%.2f\n",
				s.Arousal, s.Valence, s.Dominance, s.Intimacy)
			if len(reply.Estimates) > 0 {
				keys := make([]string, 0, len(reply.Estimates))
				for k := range reply.Estimates {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprintln(out, "Estimated recovery:")
				for _, k := range keys {
					fmt.Fprintf(out, "  %-11s %s\n", k, reply.Estimates[k])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "moodd address (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "rpc timeout")
	return cmd
}

// #endregion state

// #region turn
func (a *app) turnCmd() *cobra.Command {
	var (
		addr      string
		timeout   time.Duration
		ignored   int
		intensity float64
		req       rpc.TurnRequest
	)
	cmd := &cobra.Command{
		Use:   "turn <user-id>",
		Short: "Submit one conversation turn to moodd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.UserID = args[0]
			if cmd.Flags().Changed("ignored") {
				req.IgnoredMessages = &ignored
			}
			if cmd.Flags().Changed("intensity") {
				req.Intensity = &intensity
			}
			c, err := a.dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := c.ProcessTurn(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, reply)
			}
			s := reply.State
			fmt.Fprintf(out, "Conflict:  %s\n", s.ConflictState)
			fmt.Fprintf(out, "Affect:    arousal=%.2f valence=%.2f dominance=%.2f intimacy=%.2f\n",
				s.Arousal, s.Valence, s.Dominance, s.Intimacy)
			if reply.Recovery != nil {
				fmt.Fprintf(out, "Recovery:  +%.2f -> %.2f (%s)\n",
					reply.Recovery.ProgressAdded, reply.Recovery.Progress, reply.Recovery.Reason)
			}
			for _, ev := range reply.Events {
				fmt.Fprintf(out, "Event:     %s %s -> %s: %s\n", ev.Kind, ev.From, ev.To, ev.Reason)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "moodd address (default from config)")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "rpc timeout")
	f.StringSliceVar(&req.Tones, "tone", nil, "detected tone (repeatable)")
	f.StringVar(&req.Approach, "approach", "", "user's repair approach")
	f.Float64Var(&intensity, "intensity", 1, "repair intensity in [0,1]")
	f.BoolVar(&req.Positive, "positive", false, "the turn was positive")
	f.IntVar(&ignored, "ignored", 0, "ignored message count to record")
	f.StringVar(&req.AttachmentStyle, "attachment", "", "attachment style (secure, anxious, avoidant)")
	return cmd
}

// #endregion turn

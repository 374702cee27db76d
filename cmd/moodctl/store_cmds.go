package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
)

const timeFmt = "2006-01-02T15:04:05Z"

// #region inspect
type inspectReport struct {
	Current *mood.EmotionalState  `json:"current"`
	History []mood.EmotionalState `json:"history"`
	Events  []logging.Event       `json:"events,omitempty"`
}

func (a *app) inspectCmd() *cobra.Command {
	var last, days, events int
	var conflictOnly bool
	cmd := &cobra.Command{
		Use:   "inspect <user-id>",
		Short: "Show a user's current state, recent snapshots and journal events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			userID := args[0]
			var rep inspectReport
			if rep.Current, err = e.store.GetCurrent(ctx, userID); err != nil {
				return err
			}
			if conflictOnly {
				rep.History, err = e.store.ConflictHistory(ctx, userID, days)
				if err == nil && last > 0 && len(rep.History) > last {
					rep.History = rep.History[:last]
				}
			} else {
				rep.History, err = e.store.History(ctx, userID, days, last)
			}
			if err != nil {
				return err
			}
			if e.journal != nil && events > 0 {
				if rep.Events, err = e.journal.Recent(ctx, userID, events); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, rep)
			}
			if rep.Current == nil {
				fmt.Fprintf(out, "no state for user %q\n", userID)
				return nil
			}
			c := rep.Current
			fmt.Fprintf(out, "User:      %s\nState:     %s\nConflict:  %s\n", c.UserID, c.StateID, c.ConflictState)
			if c.ConflictStartedAt != nil {
				fmt.Fprintf(out, "Since:     %s (%s)\nTrigger:   %s\nProgress:  %.2f\n",
					c.ConflictStartedAt.Format(timeFmt), c.ConflictAge(time.Now()).Round(time.Minute),
					c.ConflictTrigger, c.RecoveryProgress())
			}
			fmt.Fprintf(out, "Affect:    arousal=%.2f valence=%.2f dominance=%.2f intimacy=%.2f\n",
				c.Arousal, c.Valence, c.Dominance, c.Intimacy)
			fmt.Fprintf(out, "Ignored:   %d\nUpdated:   %s\n\n", c.IgnoredMessageCount, c.LastUpdated.Format(timeFmt))

			fmt.Fprintf(out, "%-20s  %-18s  %5s  %5s  %5s  %5s  %7s  %8s\n",
				"Time", "Conflict", "A", "V", "D", "I", "Ignored", "Progress")
			fmt.Fprintf(out, "%-20s+-%-18s+-%5s+-%5s+-%5s+-%5s+-%7s+-%8s\n",
				"--------------------", "------------------", "-----", "-----", "-----", "-----", "-------", "--------")
			for _, h := range rep.History {
				fmt.Fprintf(out, "%-20s  %-18s  %5.2f  %5.2f  %5.2f  %5.2f  %7d  %8.2f\n",
					h.LastUpdated.Format(timeFmt), h.ConflictState, h.Arousal, h.Valence, h.Dominance, h.Intimacy,
					h.IgnoredMessageCount, h.RecoveryProgress())
			}

			if len(rep.Events) > 0 {
				fmt.Fprintf(out, "\n%-20s  %-13s  %-18s  %-18s  %s\n", "Time", "Event", "From", "To", "Reason")
				for _, ev := range rep.Events {
					fmt.Fprintf(out, "%-20s  %-13s  %-18s  %-18s  %s\n",
						ev.CreatedAt.Format(timeFmt), ev.Kind, ev.From, ev.To, short(ev.Reason, 60))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent snapshots (0 = all)")
	cmd.Flags().IntVar(&days, "days", 0, "only snapshots from the last N days (0 = all)")
	cmd.Flags().IntVar(&events, "events", 10, "show N most recent journal events")
	cmd.Flags().BoolVar(&conflictOnly, "conflicts", false, "only snapshots in conflict")
	return cmd
}

// #endregion inspect

// #region conflicts
type conflictRow struct {
	UserID   string             `json:"user_id"`
	Conflict mood.ConflictState `json:"conflict_state"`
	Since    time.Time          `json:"since"`
	Trigger  string             `json:"trigger"`
	Progress float64            `json:"recovery_progress"`
	Estimate string             `json:"estimated_recovery"`
}

func (a *app) conflictsCmd() *cobra.Command {
	var approach string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List every user currently in conflict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ap, err := recovery.ParseApproach(approach)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			ids, err := e.store.ConflictUsers(ctx)
			if err != nil {
				return err
			}
			rows := make([]conflictRow, 0, len(ids))
			for _, id := range ids {
				s, err := e.store.GetCurrent(ctx, id)
				if err != nil {
					return err
				}
				if s == nil {
					continue
				}
				row := conflictRow{
					UserID:   id,
					Conflict: s.ConflictState,
					Trigger:  s.ConflictTrigger,
					Progress: s.RecoveryProgress(),
					Estimate: "never",
				}
				if s.ConflictStartedAt != nil {
					row.Since = *s.ConflictStartedAt
				}
				if d := e.pipeline.Recovery().EstimatedRecoveryTime(*s, ap); d != recovery.Forever {
					row.Estimate = d.Round(time.Minute).String()
				}
				rows = append(rows, row)
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "no users in conflict")
				return nil
			}
			fmt.Fprintf(out, "%-24s  %-18s  %-20s  %8s  %-10s  %s\n", "User", "Conflict", "Since", "Progress", "Estimate", "Trigger")
			for _, r := range rows {
				fmt.Fprintf(out, "%-24s  %-18s  %-20s  %8.2f  %-10s  %s\n",
					short(r.UserID, 24), r.Conflict, r.Since.Format(timeFmt), r.Progress, r.Estimate, short(r.Trigger, 50))
			}
			fmt.Fprintf(out, "Total: %d users (estimates assume %s repair)\n", len(rows), ap)
			return nil
		},
	}
	cmd.Flags().StringVar(&approach, "approach", string(recovery.ApproachApologetic), "repair approach used for estimates")
	return cmd
}

// #endregion conflicts

// #region decay
func (a *app) decayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decay [user-id...]",
		Short: "Apply passive decay now (all users in conflict when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			outs, err := e.pipeline.DecaySweep(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, outs)
			}
			fmt.Fprintf(out, "%-24s  %-18s  %-18s  %8s  %-5s  %s\n", "User", "From", "To", "Progress", "Saved", "Reason")
			for _, o := range outs {
				fmt.Fprintf(out, "%-24s  %-18s  %-18s  %8.2f  %-5t  %s\n",
					short(o.UserID, 24), o.From, o.To, o.Result.Progress, o.Saved, short(o.Result.Reason, 50))
			}
			return nil
		},
	}
}

// #endregion decay

// #region delete-user
func (a *app) deleteUserCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-user <user-id>",
		Short: "Remove the current state and every snapshot for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %q without --yes", args[0])
			}
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.store.DeleteUser(ctx, args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"user_id": args[0], "deleted": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records for %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

// #endregion delete-user

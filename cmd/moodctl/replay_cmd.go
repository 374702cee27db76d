package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/moodengine/internal/config"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/replay"
)

// #region replay
type replayReport struct {
	Description string            `json:"description"`
	Results     []replay.Result   `json:"results"`
	Summary     replay.Summary    `json:"summary"`
	Mismatches  []replay.Mismatch `json:"mismatches,omitempty"`
}

func (a *app) replayCmd() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a fixture offline and compare against its expected conflict states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			cfg := config.DefaultConfig()
			if !defaults {
				if cfg, err = a.loadConfig(); err != nil {
					return err
				}
			}

			results, err := replay.Replay(cmd.Context(), f, cfg.Engine(), pipeline.WithLogger(a.logger()))
			if err != nil {
				return err
			}
			rep := replayReport{
				Description: f.Description,
				Results:     results,
				Summary:     replay.Summarize(results),
				Mismatches:  replay.Check(f, results),
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				if err := printJSON(out, rep); err != nil {
					return err
				}
			} else {
				printReplay(cmd, f, rep)
			}
			if n := len(rep.Mismatches); n > 0 {
				return fmt.Errorf("%d of %d expectations failed", n, len(f.Expected))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "ignore --config and replay with built-in thresholds")
	return cmd
}

func printReplay(cmd *cobra.Command, f *replay.Fixture, rep replayReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fixture: %s (%d turns)\n\n", f.Description, len(rep.Results))
	fmt.Fprintf(out, "%-10s  %-20s  %-18s  %-18s  %-13s  %8s  %s\n",
		"Turn", "Time", "From", "To", "Action", "Progress", "Reason")
	fmt.Fprintf(out, "%-10s+-%-20s+-%-18s+-%-18s+-%-13s+-%8s+-%s\n",
		"----------", "--------------------", "------------------", "------------------", "-------------", "--------", "------")
	for _, r := range rep.Results {
		fmt.Fprintf(out, "%-10s  %-20s  %-18s  %-18s  %-13s  %8.2f  %s\n",
			short(r.TurnID, 10), r.Timestamp.Format(timeFmt), r.From, r.To, r.Action, r.Progress, short(r.Reason, 60))
	}

	s := rep.Summary
	fmt.Fprintf(out, "\nEscalations: %d  De-escalations: %d  Recoveries: %d  Decays: %d  Steady: %d\n",
		s.Escalations, s.DeEscalations, s.Recoveries, s.Decays, s.Steady)
	fmt.Fprintf(out, "Final: %s (valence=%.2f)\n", s.FinalState.ConflictState, s.FinalState.Valence)

	if len(rep.Mismatches) == 0 {
		fmt.Fprintf(out, "Expectations: %d/%d ok\n", len(f.Expected), len(f.Expected))
		return
	}
	fmt.Fprintf(out, "Expectations: %d/%d ok\n", len(f.Expected)-len(rep.Mismatches), len(f.Expected))
	for _, m := range rep.Mismatches {
		fmt.Fprintf(out, "  MISMATCH %s\n", m)
	}
}

// #endregion replay

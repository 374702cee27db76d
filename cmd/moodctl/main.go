package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/moodengine/internal/config"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the flags shared by every subcommand.
type app struct {
	configPath string
	jsonOut    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "moodctl",
		Short: "Inspect and operate the emotional state engine",
		Long: `moodctl reads the store configured in moodengine.yaml directly for
inspection and maintenance, replays JSON fixtures offline, and talks to a
running moodd over gRPC.

Store commands:
  inspect      - current state, history and journal for one user
  conflicts    - every user currently in conflict
  decay        - run a passive decay sweep
  delete-user  - remove every record for a user

Offline:
  replay       - replay a fixture and compare against its expectations

Remote (gRPC):
  state        - fetch a user's state and recovery estimates
  turn         - submit one conversation turn`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "moodengine.yaml", "path to the YAML config")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON instead of a table")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log pipeline activity to stderr")

	root.AddCommand(
		a.inspectCmd(),
		a.conflictsCmd(),
		a.decayCmd(),
		a.deleteUserCmd(),
		a.replayCmd(),
		a.stateCmd(),
		a.turnCmd(),
	)
	return root
}

// #endregion main

// #region engine
// engine is a locally opened store with a pipeline around it.
type engine struct {
	cfg      *config.Config
	store    state.Store
	journal  *logging.Journal
	pipeline *pipeline.Pipeline
	close    func()
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) logger() *zap.Logger {
	if !a.verbose {
		return zap.NewNop()
	}
	l, err := logging.NewLogger("debug", "text")
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (a *app) open(ctx context.Context) (*engine, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := cfg.Store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	j, release, err := cfg.Store.OpenJournal(st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	logger := a.logger()
	p := pipeline.New(st, cfg.Engine(), pipeline.WithLogger(logger), pipeline.WithJournal(j))
	return &engine{
		cfg:      cfg,
		store:    st,
		journal:  j,
		pipeline: p,
		close: func() {
			logger.Sync()
			release()
			st.Close()
		},
	}, nil
}

// #endregion engine

// #region output
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/moodengine/internal/config"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/rpc"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "moodd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "moodd",
		Short: "Serve the emotional state engine over gRPC",
		Long: `moodd loads moodengine.yaml (env overrides apply), opens the configured
store and serves mood.v1.MoodService plus the standard health service until
it receives SIGINT or SIGTERM. With pipeline.decay_interval set it also runs
periodic decay sweeps over every user in conflict.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "moodengine.yaml", "path to the YAML config")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// #endregion main

// #region serve
func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := cfg.Store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	journal, release, err := cfg.Store.OpenJournal(st)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer release()

	p := pipeline.New(st, cfg.Engine(), pipeline.WithLogger(logger), pipeline.WithJournal(journal))
	srv, hs := rpc.NewGRPCServer(p, logger)

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	logger.Info("moodd ready",
		zap.String("addr", lis.Addr().String()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("journal", journal != nil),
		zap.Duration("decay_interval", cfg.Pipeline.DecayInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Warn("graceful stop timed out", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
			srv.Stop()
		}
		return nil
	})
	if every := cfg.Pipeline.DecayInterval; every > 0 {
		g.Go(func() error {
			sweepLoop(gctx, p, every, logger)
			return nil
		})
	}
	return g.Wait()
}

// sweepLoop runs a decay sweep every interval until ctx ends. Sweep errors
// are logged and the loop continues.
func sweepLoop(ctx context.Context, p *pipeline.Pipeline, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.DecaySweep(ctx, nil); err != nil && ctx.Err() == nil {
				logger.Error("decay sweep failed", zap.Error(err))
			}
		}
	}
}

// #endregion serve

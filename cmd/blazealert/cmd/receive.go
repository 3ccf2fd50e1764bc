package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/storage"
	"github.com/good-yellow-bee/blazealert/pkg/config"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Serve the trigger endpoint only",
	Long: `Serve the trigger endpoint on receiver.address and deliver posted
batches through the configured channels. Engines running with
dispatch.mode "http" post to this endpoint.

Requires BLAZEALERT_TRIGGER_SECRET.`,
	RunE: runReceiver,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
}

func runReceiver(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.TriggerSecret == "" {
		return fmt.Errorf("%s is required", EnvTriggerSecret)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build notifiers: %w", err)
	}
	if err := applyDefinitions(ctx, cfg, registry, store, logger); err != nil {
		return fmt.Errorf("apply alert definitions: %w", err)
	}

	// Channels only; the receiver never evaluates metrics.
	channels := storage.NewDirectStore(store, nil)
	rv, err := dispatch.NewReceiver(cfg.TriggerSecret, newDirect(cfg, channels, registry, logger.Named("dispatch")), logger.Named("receiver"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := newReceiverServer(cfg.Receiver.Address, rv)
	g.Go(func() error { return serveHTTP(srv, logger) })

	var ms *metrics.Server
	if !cfg.Metrics.Disabled {
		ms = metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		ms.AddReadinessCheck("sqlite", store.DB().PingContext)
		g.Go(ms.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownWithTimeout(srv.Shutdown)
		if ms != nil {
			shutdownWithTimeout(ms.Shutdown)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

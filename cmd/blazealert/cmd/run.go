package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/engine"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/queue"
	"github.com/good-yellow-bee/blazealert/internal/storage"
	"github.com/good-yellow-bee/blazealert/pkg/config"
)

const shutdownTimeout = 10 * time.Second

var runWithReceiver bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the alert engine",
	Long: `Run the alert engine: evaluate every enabled alert on its severity
schedule and deliver notifications.

With dispatch.mode "direct" notifications are sent from this process.
With dispatch.mode "http" batches are posted to dispatch.trigger_url, served
by "blazealert receive" or by "blazealert run --receiver".

Secrets are read from the environment:
  BLAZEALERT_TRIGGER_SECRET, BLAZEALERT_SMTP_PASSWORD,
  BLAZEALERT_CLICKHOUSE_PASSWORD`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().BoolVar(&runWithReceiver, "receiver", false, "also serve the trigger endpoint on receiver.address")
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("clickhouse.addresses is required to run the engine")
	}
	if runWithReceiver && cfg.TriggerSecret == "" {
		return fmt.Errorf("%s is required to serve the trigger endpoint", EnvTriggerSecret)
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
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build notifiers: %w", err)
	}
	if err := applyDefinitions(ctx, cfg, registry, store, logger); err != nil {
		return fmt.Errorf("apply alert definitions: %w", err)
	}

	spans := storage.NewClickHouseMetrics(cfg.ClickHouse.StorageClickHouse())
	if err := spans.Open(); err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}
	defer spans.Close()
	if cfg.ClickHouse.Migrate {
		if err := spans.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		logger.Info("clickhouse spans table ready")
	}

	alertStore := storage.NewDirectStore(store, spans)
	dispatcher, err := buildDispatcher(cfg, alertStore, registry, logger.Named("dispatch"))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Store:            alertStore,
		Queue:            queue.NewMemoryQueue(),
		Dispatcher:       dispatcher,
		Timings:          cfg.Engine.Severities,
		BatchSize:        cfg.Engine.BatchSize,
		Pruner:           store.AlertHistory(),
		HistoryRetention: cfg.Engine.HistoryRetention,
		Logger:           logger.Named("engine"),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var shutdowns []func(context.Context) error

	if !cfg.Metrics.Disabled {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		ms.AddReadinessCheck("sqlite", store.DB().PingContext)
		ms.AddReadinessCheck("clickhouse", spans.Ping)
		shutdowns = append(shutdowns, ms.Shutdown)
		g.Go(ms.Start)
	}

	if runWithReceiver {
		rv, err := dispatch.NewReceiver(cfg.TriggerSecret, newDirect(cfg, alertStore, registry, logger.Named("receiver")), logger.Named("receiver"))
		if err != nil {
			return err
		}
		srv := newReceiverServer(cfg.Receiver.Address, rv)
		shutdowns = append(shutdowns, srv.Shutdown)
		g.Go(func() error { return serveHTTP(srv, logger) })
	}

	if cfg.Alerts.File != "" && cfg.Alerts.Watch {
		g.Go(func() error {
			return alerting.WatchDefinitions(gctx, cfg.Alerts.File, registry, logger.Named("definitions"), func(defs *alerting.Definitions) {
				if err := defs.Apply(gctx, store); err != nil {
					logger.Error("failed to apply reloaded definitions", zap.Error(err))
				}
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		eng.Stop()
		for _, shutdown := range shutdowns {
			shutdownWithTimeout(shutdown)
		}
		return nil
	})

	if err := eng.Start(gctx); err != nil {
		stop()
		g.Wait()
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Info("blazealert started",
		zap.String("version", config.Version),
		zap.String("dispatch_mode", cfg.Dispatch.Mode))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newReceiverServer(addr string, rv *dispatch.Receiver) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      rv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("trigger endpoint listening", zap.String("addr", srv.Addr), zap.String("path", dispatch.TriggerPath))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("trigger endpoint: %w", err)
	}
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdown(ctx)
}

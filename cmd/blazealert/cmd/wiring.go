package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

// openStore opens and migrates the SQLite database, creating its directory.
func openStore(cfg *Config) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// buildRegistry registers every provider adapter. Email is registered only
// when SMTP is configured.
func buildRegistry(cfg *Config) (*notifier.Registry, error) {
	n := cfg.Notifiers
	opts := func(p models.Provider) notifier.HTTPOptions {
		return notifier.HTTPOptions{
			Client:    &http.Client{Timeout: n.HTTPTimeout},
			RateLimit: n.RateLimits[p],
		}
	}

	registry := notifier.NewRegistry(
		notifier.NewSlackAdapter(opts(models.ProviderSlack)),
		notifier.NewTeamsAdapter(opts(models.ProviderTeams)),
		notifier.NewWebhookAdapter(opts(models.ProviderWebhook)),
		notifier.NewPagerDutyAdapter(notifier.PagerDutyOptions{
			HTTP:      opts(models.ProviderPagerDuty),
			EventsURL: n.PagerDutyEventsURL,
		}),
	)

	if n.SMTP.Host != "" {
		email, err := notifier.NewEmailAdapter(n.SMTP)
		if err != nil {
			return nil, err
		}
		registry.Register(email)
	}
	return registry, nil
}

// applyDefinitions loads the definitions file, when configured, into store.
func applyDefinitions(ctx context.Context, cfg *Config, registry *notifier.Registry, store *storage.SQLiteStorage, logger *zap.Logger) error {
	if cfg.Alerts.File == "" {
		return nil
	}
	defs, err := alerting.LoadDefinitionsFile(cfg.Alerts.File, registry)
	if err != nil {
		return err
	}
	if err := defs.Apply(ctx, store); err != nil {
		return err
	}
	logger.Info("alert definitions applied",
		zap.String("file", cfg.Alerts.File),
		zap.Int("projects", len(defs.Projects)),
		zap.Int("channels", len(defs.Channels)),
		zap.Int("alerts", len(defs.Alerts)))
	return nil
}

// buildDispatcher returns the dispatcher selected by dispatch.mode.
func buildDispatcher(cfg *Config, channels storage.ChannelSource, registry *notifier.Registry, logger *zap.Logger) (dispatch.Dispatcher, error) {
	if cfg.Dispatch.Mode == DispatchHTTP {
		return dispatch.NewHTTP(dispatch.HTTPConfig{
			TriggerURL: cfg.Dispatch.TriggerURL,
			Secret:     cfg.TriggerSecret,
			Client:     &http.Client{Timeout: cfg.Dispatch.Timeout},
			Logger:     logger,
		})
	}
	return newDirect(cfg, channels, registry, logger), nil
}

func newDirect(cfg *Config, channels storage.ChannelSource, registry *notifier.Registry, logger *zap.Logger) *dispatch.Direct {
	return dispatch.NewDirect(dispatch.DirectConfig{
		Channels:       channels,
		Registry:       registry,
		DashboardURL:   cfg.Dispatch.DashboardURL,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		Logger:         logger,
	})
}

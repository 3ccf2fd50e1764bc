package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

// DefinitionsFile is the YAML document declaring projects, channels and alerts.
type DefinitionsFile struct {
	Projects []ProjectDef `yaml:"projects"`
	Channels []ChannelDef `yaml:"channels"`
	Alerts   []AlertDef   `yaml:"alerts"`
}

// ProjectDef declares a project.
type ProjectDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ChannelDef declares a notification channel. Config is passed to the
// provider adapter as JSON.
type ChannelDef struct {
	ID       string         `yaml:"id"`
	Project  string         `yaml:"project"`
	Name     string         `yaml:"name"`
	Provider string         `yaml:"provider"`
	Enabled  *bool          `yaml:"enabled"`
	Config   map[string]any `yaml:"config"`
}

// AlertDef declares an alert rule.
type AlertDef struct {
	ID           string   `yaml:"id"`
	Project      string   `yaml:"project"`
	Name         string   `yaml:"name"`
	Metric       string   `yaml:"metric"`
	Operator     string   `yaml:"operator"`
	Threshold    float64  `yaml:"threshold"`
	WindowMins   int      `yaml:"window_mins"`
	Severity     string   `yaml:"severity"`
	PendingMins  *int     `yaml:"pending_mins"`
	CooldownMins *int     `yaml:"cooldown_mins"`
	Enabled      *bool    `yaml:"enabled"`
	Channels     []string `yaml:"channels"`
}

// Definitions are validated domain objects ready to be stored.
type Definitions struct {
	Projects []*models.Project
	Channels []*models.NotificationChannel
	Alerts   []*models.Alert
}

// LoadDefinitionsFile loads definitions from a YAML file.
func LoadDefinitionsFile(path string, registry *notifier.Registry) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions file: %w", err)
	}
	defer f.Close()

	return LoadDefinitions(f, registry)
}

// LoadDefinitions loads definitions from a reader. Channel configs are
// validated with registry when it is not nil.
func LoadDefinitions(r io.Reader, registry *notifier.Registry) (*Definitions, error) {
	var file DefinitionsFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse definitions YAML: %w", err)
	}
	return file.Build(registry)
}

// LoadDefinitionsFromBytes loads definitions from YAML bytes.
func LoadDefinitionsFromBytes(data []byte, registry *notifier.Registry) (*Definitions, error) {
	return LoadDefinitions(bytes.NewReader(data), registry)
}

// Build converts and validates the declared objects, including the
// references between them.
func (f *DefinitionsFile) Build(registry *notifier.Registry) (*Definitions, error) {
	now := time.Now()
	defs := &Definitions{}

	projects := make(map[string]bool)
	for i, p := range f.Projects {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("project at index %d: id and name are required", i)
		}
		if projects[p.ID] {
			return nil, fmt.Errorf("duplicate project id %q", p.ID)
		}
		projects[p.ID] = true
		defs.Projects = append(defs.Projects, &models.Project{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	channelProject := make(map[string]string)
	for i, c := range f.Channels {
		ch, err := c.build(now)
		if err != nil {
			return nil, fmt.Errorf("invalid channel at index %d: %w", i, err)
		}
		if !projects[ch.ProjectID] {
			return nil, fmt.Errorf("channel %q: unknown project %q", ch.ID, ch.ProjectID)
		}
		if _, dup := channelProject[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		if registry != nil {
			if _, _, err := registry.ValidateChannel(ch); err != nil {
				return nil, fmt.Errorf("channel %q: %w", ch.ID, err)
			}
		}
		channelProject[ch.ID] = ch.ProjectID
		defs.Channels = append(defs.Channels, ch)
	}

	alerts := make(map[string]bool)
	for i, a := range f.Alerts {
		alert, err := a.build(now)
		if err != nil {
			return nil, fmt.Errorf("invalid alert at index %d: %w", i, err)
		}
		if alert.ID == "" {
			return nil, fmt.Errorf("alert at index %d: id is required", i)
		}
		if alerts[alert.ID] {
			return nil, fmt.Errorf("duplicate alert id %q", alert.ID)
		}
		if !projects[alert.ProjectID] {
			return nil, fmt.Errorf("alert %q: unknown project %q", alert.ID, alert.ProjectID)
		}
		for _, id := range alert.ChannelIDs {
			owner, ok := channelProject[id]
			if !ok {
				return nil, fmt.Errorf("alert %q: unknown channel %q", alert.ID, id)
			}
			if owner != alert.ProjectID {
				return nil, fmt.Errorf("alert %q: channel %q belongs to project %q", alert.ID, id, owner)
			}
		}
		alerts[alert.ID] = true
		defs.Alerts = append(defs.Alerts, alert)
	}

	return defs, nil
}

func (c ChannelDef) build(now time.Time) (*models.NotificationChannel, error) {
	if c.ID == "" || c.Project == "" {
		return nil, fmt.Errorf("id and project are required")
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	cfg := c.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", notifier.ErrInvalidConfig, err)
	}
	return &models.NotificationChannel{
		ID:        c.ID,
		ProjectID: c.Project,
		Name:      name,
		Provider:  models.Provider(c.Provider),
		Config:    raw,
		Enabled:   c.Enabled == nil || *c.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a AlertDef) build(now time.Time) (*models.Alert, error) {
	metric, err := models.ParseMetricType(a.Metric)
	if err != nil {
		return nil, err
	}
	severity, err := models.ParseSeverity(a.Severity)
	if err != nil {
		return nil, err
	}

	alert := models.NewAlert(a.Project, a.Name, metric, severity)
	alert.ID = a.ID
	alert.CreatedAt, alert.UpdatedAt = now, now
	if a.Operator != "" {
		op, err := models.ParseOperator(a.Operator)
		if err != nil {
			return nil, err
		}
		alert.Operator = op
	}
	alert.Threshold = a.Threshold
	if a.WindowMins != 0 {
		alert.WindowMins = a.WindowMins
	}
	alert.PendingMins = a.PendingMins
	alert.CooldownMins = a.CooldownMins
	alert.Enabled = a.Enabled == nil || *a.Enabled
	if a.Channels != nil {
		alert.ChannelIDs = a.Channels
	}

	if err := alert.Validate(); err != nil {
		return nil, err
	}
	return alert, nil
}

// DefinitionStore is the persistence needed to apply definitions.
type DefinitionStore interface {
	Projects() storage.ProjectRepository
	Channels() storage.ChannelRepository
	Alerts() storage.AlertRepository
}

// Apply upserts every definition. Lifecycle state of existing alerts is
// kept. Enabled alerts that are no longer defined are disabled so a reload
// stops evaluating them; their state and history stay in the store.
func (d *Definitions) Apply(ctx context.Context, store DefinitionStore) error {
	for _, p := range d.Projects {
		if err := store.Projects().Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to store project %q: %w", p.ID, err)
		}
	}
	for _, c := range d.Channels {
		if err := store.Channels().Upsert(ctx, c); err != nil {
			return fmt.Errorf("failed to store channel %q: %w", c.ID, err)
		}
	}

	defined := make(map[string]struct{}, len(d.Alerts))
	for _, a := range d.Alerts {
		if err := store.Alerts().Upsert(ctx, a); err != nil {
			return fmt.Errorf("failed to store alert %q: %w", a.ID, err)
		}
		defined[a.ID] = struct{}{}
	}

	for _, sev := range models.Severities {
		enabled, err := store.Alerts().ListEnabled(ctx, sev)
		if err != nil {
			return fmt.Errorf("failed to list %s alerts: %w", sev, err)
		}
		for _, a := range enabled {
			if _, ok := defined[a.ID]; ok {
				continue
			}
			if err := store.Alerts().SetEnabled(ctx, a.ID, false); err != nil {
				return fmt.Errorf("failed to disable removed alert %q: %w", a.ID, err)
			}
		}
	}
	return nil
}

// WatchDefinitions reloads path whenever it is written or recreated and
// calls onChange with the new definitions. A file that fails to load is
// logged and the previous definitions stay in effect. It blocks until ctx
// is cancelled.
func WatchDefinitions(ctx context.Context, path string, registry *notifier.Registry, logger *zap.Logger, onChange func(*Definitions)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save; watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	logger.Info("watching alert definitions", zap.String("path", absPath))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			defs, err := LoadDefinitionsFile(absPath, registry)
			if err != nil {
				logger.Error("definitions reload failed, keeping previous", zap.String("path", absPath), zap.Error(err))
				continue
			}
			logger.Info("definitions reloaded",
				zap.Int("projects", len(defs.Projects)),
				zap.Int("channels", len(defs.Channels)),
				zap.Int("alerts", len(defs.Alerts)))
			onChange(defs)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("definitions watcher error", zap.Error(err))
		}
	}
}

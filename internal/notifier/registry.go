package notifier

import (
	"fmt"
	"sort"
	"sync"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// Registry maps providers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any adapter for the same provider.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Get returns the adapter for a provider.
func (r *Registry) Get(provider models.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, provider)
	}
	return a, nil
}

// Has reports whether a provider has an adapter.
func (r *Registry) Has(provider models.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[provider]
	return ok
}

// List returns the registered providers in name order.
func (r *Registry) List() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateChannel validates a stored channel's config with its adapter.
func (r *Registry) ValidateChannel(ch *models.NotificationChannel) (Adapter, ChannelConfig, error) {
	a, err := r.Get(ch.Provider)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := a.ValidateConfig(ch.Config)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

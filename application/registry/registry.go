// Package registry indexes capability descriptors by id, binary and alias,
// and caches binary availability with a short TTL.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/reglet-dev/execsafety/domain/shell"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStateTTL is how long a cached availability state is trusted.
	DefaultStateTTL = 30 * time.Second
	// DefaultProbeTimeout bounds a single PATH probe.
	DefaultProbeTimeout = 5 * time.Second
)

// validate is shared; validator caches struct metadata.
var validate = validator.New()

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	prober       ports.BinaryProber
	now          func() time.Time
	logger       *slog.Logger
	ttl          time.Duration
	probeTimeout time.Duration
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		now:          time.Now,
		logger:       slog.Default(),
		ttl:          DefaultStateTTL,
		probeTimeout: DefaultProbeTimeout,
	}
}

// RegistryOption configures the Registry.
type RegistryOption func(*registryConfig)

// WithProber sets the probe used on cache misses.
func WithProber(p ports.BinaryProber) RegistryOption {
	return func(c *registryConfig) {
		c.prober = p
	}
}

// WithStateTTL sets how long availability states stay fresh.
func WithStateTTL(ttl time.Duration) RegistryOption {
	return func(c *registryConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) RegistryOption {
	return func(c *registryConfig) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(c *registryConfig) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Registry is the in-memory capability registry.
type Registry struct {
	probes      singleflight.Group
	config      registryConfig
	descriptors map[string]entities.CapabilityDescriptor // by canonical id
	index       map[string]string                        // id, binary or alias -> id
	states      map[string]entities.CapabilityState      // by binary name
	mu          sync.RWMutex
	stateMu     sync.RWMutex
}

var _ ports.CapabilityRegistry = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		config:      cfg,
		descriptors: make(map[string]entities.CapabilityDescriptor),
		index:       make(map[string]string),
		states:      make(map[string]entities.CapabilityState),
	}
}

// Register validates and indexes a descriptor. Registering an existing id
// replaces the old descriptor and its index entries. A name claimed by two
// descriptors resolves to the most recent registration.
func (r *Registry) Register(desc entities.CapabilityDescriptor) error {
	desc = desc.Normalized()
	if err := validate.Struct(desc); err != nil {
		return fmt.Errorf("invalid capability descriptor %q: %w", desc.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropIndexLocked(desc.ID)
	r.descriptors[desc.ID] = desc
	for _, name := range desc.Names() {
		r.index[name] = desc.ID
	}
	return nil
}

// Unregister removes the descriptor that idOrAlias resolves to.
func (r *Registry) Unregister(idOrAlias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.index[canonical(idOrAlias)]
	if !ok {
		return false
	}
	r.dropIndexLocked(id)
	delete(r.descriptors, id)
	return true
}

// dropIndexLocked removes index entries owned by id. Caller holds mu.
func (r *Registry) dropIndexLocked(id string) {
	for name, owner := range r.index {
		if owner == id {
			delete(r.index, name)
		}
	}
}

// Get resolves an id, binary name or alias.
func (r *Registry) Get(idOrAlias string) (entities.CapabilityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.index[canonical(idOrAlias)]
	if !ok {
		return entities.CapabilityDescriptor{}, false
	}
	return r.descriptors[id].Normalized(), true
}

// List returns every descriptor sorted by id.
func (r *Registry) List() []entities.CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.CapabilityDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.Normalized())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns the cached state for a binary, fresh or not.
func (r *Registry) State(binary string) (entities.CapabilityState, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	s, ok := r.states[canonical(binary)]
	return s, ok
}

// IsBinaryAvailable returns the cached state when fresh and probes otherwise.
// Concurrent misses for the same binary share one probe.
func (r *Registry) IsBinaryAvailable(ctx context.Context, binary string) bool {
	key := canonical(binary)
	if key == "" {
		return false
	}

	if s, ok := r.State(key); ok && !s.Expired(r.config.now(), r.config.ttl) {
		return s.Available
	}

	if r.config.prober == nil {
		r.config.logger.WarnContext(ctx, "no binary prober configured", "binary", key)
		return false
	}

	v, _, _ := r.probes.Do(key, func() (interface{}, error) {
		// A probe that finished between the cache check and Do already stored a state.
		if s, ok := r.State(key); ok && !s.Expired(r.config.now(), r.config.ttl) {
			return s.Available, nil
		}
		return r.probe(ctx, key), nil
	})
	return v.(bool)
}

// probe runs the prober detached from the caller's cancellation, since the
// result is shared with every coalesced caller.
func (r *Registry) probe(ctx context.Context, binary string) bool {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.probeTimeout)
	defer cancel()

	available, detail, err := r.config.prober.Probe(pctx, binary)
	if err != nil {
		r.config.logger.WarnContext(ctx, "binary probe failed", "binary", binary, "error", err)
		available, detail = false, err.Error()
	}

	r.putState(binary, entities.CapabilityState{
		LastCheckedAt: r.config.now(),
		Source:        entities.StateSourceProbe,
		Detail:        detail,
		Available:     available,
	})
	return available
}

// SetBinaryState records a runtime state without probing.
func (r *Registry) SetBinaryState(binary string, available bool, detail string) {
	key := canonical(binary)
	if key == "" {
		return
	}
	r.putState(key, entities.CapabilityState{
		LastCheckedAt: r.config.now(),
		Source:        entities.StateSourceRuntime,
		Detail:        detail,
		Available:     available,
	})
}

// Invalidate drops the cached state for a binary so the next check probes.
func (r *Registry) Invalidate(binary string) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	delete(r.states, canonical(binary))
}

func (r *Registry) putState(binary string, s entities.CapabilityState) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.states[binary] = s
}

// ResolveCommandCapabilities maps every executable in command to a descriptor.
// Missing capabilities are listed once per capability id even when several
// segments or aliases reference the same one.
func (r *Registry) ResolveCommandCapabilities(ctx context.Context, command string) entities.CommandResolution {
	res := entities.CommandResolution{
		Executables:         shell.CollectExecutables(command),
		KnownCapabilities:   []entities.CapabilityDescriptor{},
		MissingCapabilities: []entities.CapabilityDescriptor{},
		UnknownExecutables:  []string{},
	}

	seen := make(map[string]bool)
	for _, exe := range res.Executables {
		desc, ok := r.Get(exe)
		if !ok {
			res.UnknownExecutables = append(res.UnknownExecutables, exe)
			continue
		}
		if seen[desc.ID] {
			continue
		}
		seen[desc.ID] = true
		res.KnownCapabilities = append(res.KnownCapabilities, desc)

		if !r.IsBinaryAvailable(ctx, desc.BinaryName()) {
			res.MissingCapabilities = append(res.MissingCapabilities, desc)
		}
	}
	return res
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

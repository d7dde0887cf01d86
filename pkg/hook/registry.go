package hook

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/internal/fatal"
)

// Config configures a Registry.
type Config struct {
	// Logger receives resolution, ordering, dispatch and lifecycle events.
	Logger zerolog.Logger
	// Binder resolves member references to native addresses.
	Binder Binder
	// Backend generates entry points and original paths.
	Backend Backend
	// Aborter terminates the process on fatal failures. Defaults to
	// fatal.New with the registry logger.
	Aborter Aborter
}

// Registry maps each target to its singleton Unit and Chain. There is at
// most one redirection per native function, so a process normally uses a
// single registry (see Default). Entries are never removed.
type Registry struct {
	resolver *Resolver
	backend  Backend
	aborter  Aborter
	logger   zerolog.Logger

	mu     sync.Mutex
	units  map[*Target]*Unit
	chains map[*Target]*Chain
	// claims maps a native entry to the first target that resolved to it.
	claims map[uintptr]*Target
}

// NewRegistry creates a registry.
func NewRegistry(cfg Config) *Registry {
	aborter := cfg.Aborter
	if aborter == nil {
		aborter = fatal.New(cfg.Logger)
	}
	return &Registry{
		resolver: NewResolver(cfg.Binder, cfg.Logger),
		backend:  cfg.Backend,
		aborter:  aborter,
		logger:   cfg.Logger.With().Str("component", "hook-registry").Logger(),
		units:    make(map[*Target]*Unit),
		chains:   make(map[*Target]*Chain),
		claims:   make(map[uintptr]*Target),
	}
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Configure replaces the process-wide registry used by the package-level
// functions. Call it once at startup, before any hook is installed.
func Configure(cfg Config) *Registry {
	r := NewRegistry(cfg)
	defaultMu.Lock()
	defaultRegistry = r
	defaultMu.Unlock()
	return r
}

// Default returns the process-wide registry, creating an unconfigured one
// (no binder, no backend) on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(Config{Logger: zerolog.Nop()})
	}
	return defaultRegistry
}

// Resolve resolves a member reference through the registry's resolver.
func (r *Registry) Resolve(owner, name string, params, generics []string) (*Target, error) {
	return r.resolver.Resolve(owner, name, params, generics)
}

// Unit returns the unit for t, creating it and its chain on first use.
func (r *Registry) Unit(t *Target) *Unit {
	u, _ := r.getOrCreate(t)
	return u
}

// Chain returns the chain for t, creating it and its unit on first use.
func (r *Registry) Chain(t *Target) *Chain {
	_, c := r.getOrCreate(t)
	return c
}

func (r *Registry) getOrCreate(t *Target) (*Unit, *Chain) {
	t = r.resolver.intern(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.units[t]; ok {
		return u, r.chains[t]
	}

	c := NewChain(t, r.logger)
	u := newUnit(t, c, r.backend, r.aborter, r.logger)
	u.claimErr = r.claimLocked(t)
	r.units[t] = u
	r.chains[t] = c
	return u, c
}

// claimLocked records t as the owner of its native entry. A second target
// at the same address gets a unit that refuses to prepare or attach, so a
// native function never carries two redirections.
func (r *Registry) claimLocked(t *Target) error {
	addr := t.Address()
	if addr == 0 {
		return nil
	}
	if prev, ok := r.claims[addr]; ok && prev != t {
		r.logger.Warn().
			Str("target", t.FullName()).
			Str("claimed_by", prev.FullName()).
			Str("address", hexAddr(addr)).
			Msg("Target resolves to a native entry that is already hooked")
		return &ResolutionError{
			Target: t.FullName(),
			Err:    fmt.Errorf("%w: %s at %s", ErrAddressClaimed, prev.FullName(), hexAddr(addr)),
		}
	}
	r.claims[addr] = t
	return nil
}

// Targets returns every target that has a unit.
func (r *Registry) Targets() []*Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Target, 0, len(r.units))
	for t := range r.units {
		out = append(out, t)
	}
	return out
}

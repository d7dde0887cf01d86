package hook

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Unbound is the placeholder for a generic argument that has not been
// instantiated yet. Targets carrying it cannot be resolved.
const Unbound = "?"

// Signature is the declared shape of a member, as the binder sees it.
type Signature struct {
	Params   []string
	Generics []string
}

// Binding is what a Binder knows about a native member.
type Binding struct {
	// Address is the native entry point.
	Address uintptr
	// Static reports a member without receiver.
	Static bool
	// Return is the return type name, used as the return cell's type tag.
	Return string
	// Synthesized marks compiler or runtime generated members (wrappers,
	// closures, dynamic methods) whose entry cannot be invoked directly.
	Synthesized bool
	// Open marks members whose generic parameters are still unbound.
	Open bool
}

// Binder maps a logical member reference to a native address. Binders
// should wrap ErrNotCallable when the member has no native entry point.
type Binder interface {
	Bind(owner, name string, sig Signature) (Binding, error)
}

// BinderFunc adapts a function to the Binder interface.
type BinderFunc func(owner, name string, sig Signature) (Binding, error)

// Bind implements Binder.
func (f BinderFunc) Bind(owner, name string, sig Signature) (Binding, error) {
	return f(owner, name, sig)
}

// Resolver turns member references into deduplicated Targets. The cache is
// process-lifetime: entries are never evicted.
type Resolver struct {
	binder Binder
	logger zerolog.Logger

	mu      sync.Mutex
	buckets map[uint64][]*Target
}

// NewResolver creates a resolver backed by binder.
func NewResolver(binder Binder, logger zerolog.Logger) *Resolver {
	return &Resolver{
		binder:  binder,
		logger:  logger.With().Str("component", "resolver").Logger(),
		buckets: make(map[uint64][]*Target),
	}
}

// Resolve returns the Target for the given member, binding it on first use.
func (r *Resolver) Resolve(owner, name string, params, generics []string) (*Target, error) {
	probe := newTarget(owner, name, params, generics, Binding{})
	full := probe.FullName()

	if name == "" {
		return nil, &ResolutionError{Target: full, Err: ErrNotCallable}
	}
	for _, g := range generics {
		if g == "" || g == Unbound || strings.HasPrefix(g, "!") {
			return nil, &ResolutionError{Target: full, Err: ErrOpenGeneric}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.buckets[probe.print] {
		if t.Equal(probe) {
			return t, nil
		}
	}

	if r.binder == nil {
		return nil, &ResolutionError{Target: full, Err: errors.New("no binder configured")}
	}

	b, err := r.binder.Bind(owner, name, Signature{Params: probe.Params(), Generics: probe.Generics()})
	if err != nil {
		return nil, &ResolutionError{Target: full, Err: err}
	}
	switch {
	case b.Open:
		return nil, &ResolutionError{Target: full, Err: ErrOpenGeneric}
	case b.Synthesized:
		return nil, &ResolutionError{Target: full, Err: ErrSynthesized}
	case b.Address == 0:
		return nil, &ResolutionError{Target: full, Err: ErrNotCallable}
	}

	t := newTarget(owner, name, params, generics, b)
	r.buckets[t.print] = append(r.buckets[t.print], t)

	r.logger.Debug().
		Str("target", full).
		Uint64("fingerprint", t.print).
		Str("address", hexAddr(b.Address)).
		Msg("Resolved hook target")

	return t, nil
}

// intern returns the cached target structurally equal to t, adding t if
// there is none. Targets resolved elsewhere thus share one unit.
func (r *Resolver) intern(t *Target) *Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.buckets[t.print] {
		if c.Equal(t) {
			return c
		}
	}
	r.buckets[t.print] = append(r.buckets[t.print], t)
	return t
}

// Len returns the number of cached targets.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ts := range r.buckets {
		n += len(ts)
	}
	return n
}

package hook

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Stats are cumulative dispatch counters for one chain.
type Stats struct {
	Dispatches       uint64
	PassThrough      uint64
	OriginalCalls    uint64
	CallbackFailures uint64
}

// Chain is the ordered set of registrations for one target. Membership
// changes are serialized and publish a fresh immutable order; dispatch
// reads whichever order was current when the call started.
type Chain struct {
	target *Target
	logger zerolog.Logger

	mu          sync.Mutex
	members     []*Registration
	ambiguities []Ambiguity
	cycles      []Cycle

	ordered atomic.Pointer[[]*Registration]

	dispatches    atomic.Uint64
	passThrough   atomic.Uint64
	originalCalls atomic.Uint64
	failures      atomic.Uint64
}

// NewChain creates an empty chain. target may be nil for chains used only
// to compute an order; such chains log with whatever fields logger already
// carries.
func NewChain(target *Target, logger zerolog.Logger) *Chain {
	lc := logger.With().Str("component", "hook-chain")
	if target != nil {
		lc = lc.Str("target", target.FullName())
	}
	c := &Chain{
		target: target,
		logger: lc.Logger(),
	}
	empty := []*Registration{}
	c.ordered.Store(&empty)
	return c
}

func targetName(t *Target) string {
	if t == nil {
		return "<unbound>"
	}
	return t.FullName()
}

// Target returns the chain's target.
func (c *Chain) Target() *Target { return c.target }

// Add appends reg and recomputes the order.
func (c *Chain) Add(reg *Registration) error {
	if reg == nil {
		return &ConfigurationError{Err: ErrMissingOwner}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.members, reg) {
		return nil
	}
	c.members = append(c.members, reg)
	c.reorderLocked()

	c.logger.Info().
		Str("owner", reg.Owner()).
		Int("priority", reg.Priority()).
		Strs("precede", reg.Precede()).
		Strs("follow", reg.Follow()).
		Msg("Added hook registration")

	return nil
}

// Remove drops reg if owner holds its capability, then recomputes the order.
func (c *Chain) Remove(owner Owner, reg *Registration) error {
	if reg == nil {
		return nil
	}
	if !reg.owner.Is(owner) {
		return &ConfigurationError{Owner: owner.Name(), Err: ErrNotOwner}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.Index(c.members, reg)
	if i < 0 {
		return nil
	}
	c.members = slices.Delete(c.members, i, i+1)
	c.reorderLocked()

	c.logger.Info().Str("owner", reg.Owner()).Msg("Removed hook registration")
	return nil
}

func (c *Chain) reorderLocked() {
	res := orderRegistrations(c.members)

	for _, a := range res.ambiguities {
		c.logger.Warn().
			Str("first", a.First).
			Str("second", a.Second).
			Int("priority", a.Priority).
			Str("kind", a.Kind).
			Msg("Both owners requested to " + a.Kind + " each other with a matching priority; keeping insertion order")
	}
	for _, cy := range res.cycles {
		c.logger.Warn().
			Strs("owners", cy.Owners).
			Msg("Ordering constraints form a cycle; falling back to priority order")
	}

	c.ambiguities = res.ambiguities
	c.cycles = res.cycles
	order := res.order
	c.ordered.Store(&order)
}

// Registrations returns the current dispatch order.
func (c *Chain) Registrations() []*Registration {
	return slices.Clone(*c.ordered.Load())
}

// Len returns the number of registrations.
func (c *Chain) Len() int { return len(*c.ordered.Load()) }

// Ambiguities returns the contradictions found by the last reorder.
func (c *Chain) Ambiguities() []Ambiguity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ambiguities)
}

// Cycles returns the constraint cycles found by the last reorder.
func (c *Chain) Cycles() []Cycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.cycles)
}

// Stats returns the dispatch counters.
func (c *Chain) Stats() Stats {
	return Stats{
		Dispatches:       c.dispatches.Load(),
		PassThrough:      c.passThrough.Load(),
		OriginalCalls:    c.originalCalls.Load(),
		CallbackFailures: c.failures.Load(),
	}
}

func (c *Chain) snapshot() []*Registration {
	return *c.ordered.Load()
}

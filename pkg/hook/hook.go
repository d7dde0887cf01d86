// Package hook intercepts native functions and dispatches each call
// through an ordered chain of callbacks contributed by independent owners.
//
// A Target identifies one native function. The Registry keeps exactly one
// Unit (generated entry point, original path, attach state) and one Chain
// (ordered registrations) per target. Each native call into an attached
// target lands in Chain.Dispatch, which exposes the arguments and return
// value as Cells that callbacks can read and override. The original
// function runs at most once per call, and only if a callback asks for its
// result or no callback supplied a return value.
//
// Typical use:
//
//	reg := hook.Configure(hook.Config{Logger: logger, Binder: b, Backend: native.New(logger)})
//	t, _ := reg.Resolve("libgame.so", "Player_TakeDamage", []string{"int32"}, nil)
//	owner := hook.NewOwner("godmode")
//	h, _ := reg.Hook(owner, t, 100, nil, []string{"logger"})
//	_ = h.SetCallback(func(ret *hook.ReturnCell, args []*hook.Cell) error {
//		args[1].OverrideInt(0)
//		return nil
//	})
//	_ = h.Attach()
package hook

import (
	"errors"
)

// Handle is an owner's grip on one registration. It carries the owner's
// capability, so only code holding the handle can change or remove it.
type Handle struct {
	owner Owner
	reg   *Registration
	unit  *Unit
	chain *Chain
}

// Hook registers owner on target t with the given priority and ordering
// constraints and returns its handle. The registration joins the chain
// immediately; the redirection is installed by Handle.Attach.
func (r *Registry) Hook(owner Owner, t *Target, priority int, precede, follow []string) (*Handle, error) {
	if t == nil {
		return nil, &ResolutionError{Target: "<nil>", Err: ErrNotCallable}
	}
	if r.backend == nil {
		return nil, &ConfigurationError{Owner: owner.Name(), Err: ErrNoBackend}
	}

	reg, err := NewRegistration(owner, priority, precede, follow)
	if err != nil {
		return nil, err
	}

	unit, chain := r.getOrCreate(t)
	if err := unit.prepare(); err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &ResolutionError{Target: t.FullName(), Err: err}
	}

	if err := chain.Add(reg); err != nil {
		return nil, err
	}

	return &Handle{owner: owner, reg: reg, unit: unit, chain: chain}, nil
}

// Hook registers owner on t in the Default registry.
func Hook(owner Owner, t *Target, priority int, precede, follow []string) (*Handle, error) {
	return Default().Hook(owner, t, priority, precede, follow)
}

// Attach installs the target's redirection. It is shared by every
// registration on the target.
func (h *Handle) Attach() error { return h.unit.Attach() }

// Detach removes the target's redirection.
func (h *Handle) Detach() error { return h.unit.Detach() }

// SetCallback replaces the registration's callbacks with fn.
func (h *Handle) SetCallback(fn Callback) error { return h.reg.SetCallback(h.owner, fn) }

// AddCallback appends fn to the registration's callbacks.
func (h *Handle) AddCallback(fn Callback) error { return h.reg.AddCallback(h.owner, fn) }

// Remove takes the registration out of the chain. The redirection stays
// installed; with no registrations left calls pass straight through.
func (h *Handle) Remove() error { return h.chain.Remove(h.owner, h.reg) }

// Target returns the hooked target.
func (h *Handle) Target() *Target { return h.unit.Target() }

// Registration returns the underlying registration.
func (h *Handle) Registration() *Registration { return h.reg }

// Unit returns the target's unit.
func (h *Handle) Unit() *Unit { return h.unit }

// Chain returns the target's chain.
func (h *Handle) Chain() *Chain { return h.chain }

package hook

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Entry is the routine generated code hands the packed argument words to.
// Words are ordered: instance, declared parameters, method identity.
type Entry func(args []uintptr) uintptr

// Artifacts are the generated pieces for one target.
type Artifacts interface {
	// EntryPoint is the native address of the redirection entry.
	EntryPoint() uintptr
	// Install redirects the target to the entry point.
	Install() error
	// Uninstall restores the target's original behavior.
	Uninstall() error
	// CallOriginal runs the original implementation with the given words.
	CallOriginal(args []uintptr) (uintptr, error)
}

// Backend generates native code for targets.
type Backend interface {
	// Prepare checks that the target can be redirected without side effects.
	Prepare(t *Target) error
	// Build generates the entry point and the original path for t. It is
	// called at most once per target.
	Build(t *Target, entry Entry) (Artifacts, error)
}

// Aborter terminates the process after logging reason and waiting a fixed
// grace period. Implementations used outside tests never return.
type Aborter interface {
	Abort(reason error)
}

// State is the lifecycle state of a Unit.
type State int32

const (
	StateUnbuilt State = iota
	StateBuilt
	StateAttached
	StateDetaching
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Unit owns the generated code for one target and its attach state.
// Build, Attach and Detach are serialized; overlapping Attach and Detach
// calls from different goroutines are a caller error.
type Unit struct {
	target  *Target
	chain   *Chain
	backend Backend
	aborter Aborter
	logger  zerolog.Logger

	// claimErr is set when another target owns the same native entry.
	claimErr error

	prepareOnce sync.Once
	prepareErr  error

	mu        sync.Mutex
	state     atomic.Int32
	captured  atomic.Bool
	artifacts Artifacts
}

func newUnit(t *Target, chain *Chain, backend Backend, aborter Aborter, logger zerolog.Logger) *Unit {
	return &Unit{
		target:  t,
		chain:   chain,
		backend: backend,
		aborter: aborter,
		logger:  logger.With().Str("component", "interception-unit").Str("target", t.FullName()).Logger(),
	}
}

// Target returns the unit's target.
func (u *Unit) Target() *Target { return u.target }

// Chain returns the chain dispatched by the unit's entry point.
func (u *Unit) Chain() *Chain { return u.chain }

// State returns the current lifecycle state.
func (u *Unit) State() State { return State(u.state.Load()) }

func (u *Unit) prepare() error {
	u.prepareOnce.Do(func() {
		if u.claimErr != nil {
			u.prepareErr = u.claimErr
			return
		}
		if u.backend == nil {
			u.prepareErr = ErrNoBackend
			return
		}
		u.prepareErr = u.backend.Prepare(u.target)
	})
	return u.prepareErr
}

// Build generates the entry point and the original path once. A failure
// is fatal: it is logged and the process is aborted after the grace period.
func (u *Unit) Build() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buildLocked()
}

func (u *Unit) buildLocked() error {
	if u.State() != StateUnbuilt {
		return nil
	}
	if u.claimErr != nil {
		return u.claimErr
	}
	if u.backend == nil {
		return u.fatal(&BuildError{Target: u.target.FullName(), Err: ErrNoBackend})
	}

	arts, err := u.backend.Build(u.target, u.enter)
	if err != nil {
		return u.fatal(&BuildError{Target: u.target.FullName(), Err: err})
	}

	u.artifacts = arts
	u.state.Store(int32(StateBuilt))
	u.logger.Debug().Str("entry", hexAddr(arts.EntryPoint())).Msg("Built interception unit")
	return nil
}

// Attach builds the unit if needed and installs the redirection.
func (u *Unit) Attach() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.State() == StateAttached {
		return nil
	}
	if err := u.buildLocked(); err != nil {
		return err
	}
	if err := u.artifacts.Install(); err != nil {
		return u.fatal(&BuildError{Target: u.target.FullName(), Err: fmt.Errorf("install redirection: %w", err)})
	}

	u.captured.Store(true)
	u.state.Store(int32(StateAttached))
	u.logger.Info().Msg("Attached hook")
	return nil
}

// Detach restores the target's original behavior.
func (u *Unit) Detach() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.State() != StateAttached {
		return nil
	}

	u.state.Store(int32(StateDetaching))
	if err := u.artifacts.Uninstall(); err != nil {
		return u.fatal(&BuildError{Target: u.target.FullName(), Err: fmt.Errorf("remove redirection: %w", err)})
	}
	u.state.Store(int32(StateDetached))
	u.logger.Info().Msg("Detached hook")
	return nil
}

// InvokeOriginal calls the original implementation through the path
// captured when the unit was first attached.
func (u *Unit) InvokeOriginal(args []uintptr) (uintptr, error) {
	if !u.captured.Load() {
		return 0, &InvocationError{Target: u.target.FullName(), Err: ErrNeverAttached}
	}
	if u.State() != StateAttached {
		return 0, &InvocationError{Target: u.target.FullName(), Err: ErrDetached}
	}
	if len(args) != u.target.Arity() {
		return 0, &InvocationError{
			Target: u.target.FullName(),
			Err:    fmt.Errorf("expected %d argument words, got %d", u.target.Arity(), len(args)),
		}
	}
	return u.artifacts.CallOriginal(args)
}

// enter is the dispatch routine bound into the generated entry point.
// Nothing may escape it: a native caller cannot unwind a Go panic, and an
// unresolvable return value cannot be handed back safely.
func (u *Unit) enter(args []uintptr) (ret uintptr) {
	defer func() {
		if r := recover(); r != nil {
			_ = u.fatal(fmt.Errorf("panic escaped dispatch of %s: %v", u.target.FullName(), r))
			ret = 0
		}
	}()

	v, err := u.chain.Dispatch(args, u.InvokeOriginal)
	if err != nil {
		_ = u.fatal(err)
		return 0
	}
	return v
}

func (u *Unit) fatal(err error) error {
	u.logger.Error().Err(err).Msg("Unrecoverable hook failure; the process will exit to prevent corruption")
	if u.aborter != nil {
		u.aborter.Abort(err)
	}
	return err
}

package hook

import (
	"errors"
	"fmt"
)

var (
	// ErrOverlappingConstraints means an owner appears in both the precede
	// and the follow set of one registration.
	ErrOverlappingConstraints = errors.New("owner listed in both precede and follow")
	// ErrMissingCallback means a callback argument was nil.
	ErrMissingCallback = errors.New("callback is required")
	// ErrMissingOwner means the owner has no name or no token.
	ErrMissingOwner = errors.New("owner is required")
	// ErrNotOwner means the caller's token does not match the registration.
	ErrNotOwner = errors.New("registration belongs to a different owner")
	// ErrNoBackend means the registry has no code generation backend.
	ErrNoBackend = errors.New("no native backend configured")

	// ErrNotCallable means the binder found no native entry point.
	ErrNotCallable = errors.New("member is not natively callable")
	// ErrOpenGeneric means the member still has unbound generic parameters.
	ErrOpenGeneric = errors.New("member has unbound generic parameters")
	// ErrSynthesized means the member is generated at runtime and cannot be invoked.
	ErrSynthesized = errors.New("member is runtime-synthesized")
	// ErrAddressClaimed means another target already resolved to the same
	// native entry.
	ErrAddressClaimed = errors.New("native entry already claimed by another target")

	// ErrNeverAttached means the original path was requested before any attach.
	ErrNeverAttached = errors.New("original path not captured: unit was never attached")
	// ErrDetached means the original path was requested while not attached.
	ErrDetached = errors.New("original path unavailable: unit is detached")
)

// ConfigurationError reports a registration rejected at construction.
type ConfigurationError struct {
	Owner string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("invalid hook configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid hook configuration for %q: %v", e.Owner, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResolutionError reports a member that cannot be hooked.
type ResolutionError struct {
	Target string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %v", e.Target, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// BuildError reports a failure to generate the entry point or the original
// path. It is always fatal.
type BuildError struct {
	Target string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build interception unit for %s: %v", e.Target, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// DispatchError reports a callback that failed during dispatch. The chain
// recovers from it.
type DispatchError struct {
	Target string
	Owner  string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("callback of %q failed in hook of %s: %v", e.Owner, e.Target, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// CriticalError marks a callback failure that leaves the native boundary
// in an unsafe state. Returning (or panicking with) a CriticalError from a
// callback aborts the process after the grace period.
type CriticalError struct {
	Err error
}

// Critical wraps err so that dispatch treats it as fatal.
func Critical(err error) error {
	if err == nil {
		err = errors.New("critical failure")
	}
	return &CriticalError{Err: err}
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical: %v", e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// IsCritical reports whether err carries a CriticalError.
func IsCritical(err error) bool {
	var ce *CriticalError
	return errors.As(err, &ce)
}

// InvocationError reports a call through the original path while it is
// unavailable.
type InvocationError struct {
	Target string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("cannot invoke original %s: %v", e.Target, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

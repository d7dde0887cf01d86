//go:build darwin || linux

package binder

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// LibraryBinder binds exported C symbols of shared libraries. The owner of
// a member reference is the library path or soname; libraries are opened
// once and never closed.
type LibraryBinder struct {
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[string]uintptr
}

// NewLibraryBinder creates a library binder.
func NewLibraryBinder(logger zerolog.Logger) *LibraryBinder {
	return &LibraryBinder{
		logger:  logger.With().Str("component", "library-binder").Logger(),
		handles: make(map[string]uintptr),
	}
}

// Bind implements hook.Binder. Exports have no receiver, so bindings are
// always static.
func (l *LibraryBinder) Bind(owner, name string, _ hook.Signature) (hook.Binding, error) {
	if owner == "" {
		return hook.Binding{}, fmt.Errorf("%w: library is required for %s", hook.ErrNotCallable, name)
	}

	h, err := l.open(owner)
	if err != nil {
		return hook.Binding{}, err
	}
	addr, err := purego.Dlsym(h, name)
	if err != nil {
		return hook.Binding{}, fmt.Errorf("%w: %s not exported by %s: %v", hook.ErrNotCallable, name, owner, err)
	}

	l.logger.Debug().Str("library", owner).Str("symbol", name).Msgf("Bound export at %#x", addr)
	return hook.Binding{Address: addr, Static: true}, nil
}

func (l *LibraryBinder) open(lib string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.handles[lib]; ok {
		return h, nil
	}
	h, err := purego.Dlopen(lib, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("failed to open library %s: %w", lib, err)
	}
	l.handles[lib] = h
	return h, nil
}

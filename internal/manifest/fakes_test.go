package manifest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/hookchain/internal/testutil"
	"github.com/coral-mesh/hookchain/pkg/hook"
)

// stubArtifacts routes call through the entry point while installed.
type stubArtifacts struct {
	entry    hook.Entry
	original func(args []uintptr) uintptr

	mu        sync.Mutex
	installed bool
	originals int
}

func (a *stubArtifacts) EntryPoint() uintptr { return 0xe0e0 }

func (a *stubArtifacts) Install() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.installed = true
	return nil
}

func (a *stubArtifacts) Uninstall() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.installed = false
	return nil
}

func (a *stubArtifacts) CallOriginal(args []uintptr) (uintptr, error) {
	a.mu.Lock()
	a.originals++
	a.mu.Unlock()
	return a.original(args), nil
}

func (a *stubArtifacts) call(args ...uintptr) uintptr {
	a.mu.Lock()
	installed := a.installed
	a.mu.Unlock()
	if installed {
		return a.entry(args)
	}
	return a.original(args)
}

type stubBackend struct {
	original func(args []uintptr) uintptr

	mu   sync.Mutex
	arts map[string]*stubArtifacts
}

func (b *stubBackend) Prepare(*hook.Target) error { return nil }

func (b *stubBackend) Build(t *hook.Target, entry hook.Entry) (hook.Artifacts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := &stubArtifacts{entry: entry, original: b.original}
	b.arts[t.Name()] = a
	return a, nil
}

func (b *stubBackend) artifacts(name string) *stubArtifacts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arts[name]
}

type nopAborter struct {
	mu      sync.Mutex
	reasons []error
}

func (a *nopAborter) Abort(reason error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}

// newRegistry binds every member to a fake address; the original returns
// the second argument word doubled.
func newRegistry(t *testing.T) (*hook.Registry, *stubBackend, *nopAborter) {
	t.Helper()
	backend := &stubBackend{
		original: func(args []uintptr) uintptr {
			if len(args) < 2 {
				return 7
			}
			return args[1] * 2
		},
		arts: make(map[string]*stubArtifacts),
	}
	aborter := &nopAborter{}
	addrs := make(map[string]uintptr)
	reg := hook.NewRegistry(hook.Config{
		Logger: testutil.NewTestLogger(t),
		Binder: hook.BinderFunc(func(owner, name string, sig hook.Signature) (hook.Binding, error) {
			if name == "Missing" {
				return hook.Binding{}, hook.ErrNotCallable
			}
			key := owner + "." + name
			if _, ok := addrs[key]; !ok {
				addrs[key] = 0x1000 * uintptr(len(addrs)+1)
			}
			return hook.Binding{Address: addrs[key], Return: "int32"}, nil
		}),
		Backend: backend,
		Aborter: aborter,
	})
	return reg, backend, aborter
}

func mustParse(t *testing.T, src string) *Manifest {
	t.Helper()
	m, err := Parse([]byte(src))
	require.NoError(t, err)
	return m
}

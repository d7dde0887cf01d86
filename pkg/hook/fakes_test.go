package hook

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/hookchain/internal/testutil"
)

// fakeArtifacts stands in for generated code. call simulates a native call
// into the target: it goes through the entry point when installed and to
// the original otherwise.
type fakeArtifacts struct {
	entry      Entry
	original   func(args []uintptr) uintptr
	installErr error

	mu            sync.Mutex
	installed     bool
	installs      int
	uninstalls    int
	originalCalls int
}

func (a *fakeArtifacts) EntryPoint() uintptr { return 0xe0e0 }

func (a *fakeArtifacts) Install() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installErr != nil {
		return a.installErr
	}
	a.installed = true
	a.installs++
	return nil
}

func (a *fakeArtifacts) Uninstall() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.installed = false
	a.uninstalls++
	return nil
}

func (a *fakeArtifacts) CallOriginal(args []uintptr) (uintptr, error) {
	a.mu.Lock()
	a.originalCalls++
	a.mu.Unlock()
	return a.original(args), nil
}

func (a *fakeArtifacts) call(args ...uintptr) uintptr {
	a.mu.Lock()
	installed := a.installed
	a.mu.Unlock()
	if installed {
		return a.entry(args)
	}
	return a.original(args)
}

func (a *fakeArtifacts) originals() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.originalCalls
}

type fakeBackend struct {
	original   func(args []uintptr) uintptr
	prepareErr error
	buildErr   error
	installErr error

	mu     sync.Mutex
	builds int
	arts   map[*Target]*fakeArtifacts
}

func newFakeBackend(original func(args []uintptr) uintptr) *fakeBackend {
	return &fakeBackend{original: original, arts: make(map[*Target]*fakeArtifacts)}
}

func (b *fakeBackend) Prepare(*Target) error { return b.prepareErr }

func (b *fakeBackend) Build(t *Target, entry Entry) (Artifacts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builds++
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	a := &fakeArtifacts{entry: entry, original: b.original, installErr: b.installErr}
	b.arts[t] = a
	return a, nil
}

func (b *fakeBackend) artifacts(t *Target) *fakeArtifacts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arts[t]
}

type recordingAborter struct {
	mu      sync.Mutex
	reasons []error
}

func (a *recordingAborter) Abort(reason error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}

func (a *recordingAborter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reasons)
}

// tableBinder binds every "owner.name" in the map, and reports
// ErrNotCallable for anything else.
type tableBinder map[string]Binding

func (tb tableBinder) Bind(owner, name string, _ Signature) (Binding, error) {
	b, ok := tb[owner+"."+name]
	if !ok {
		return Binding{}, ErrNotCallable
	}
	return b, nil
}

// sumWords is Foo(a, b) = a + b in the (instance, a, b, method) layout.
func sumWords(args []uintptr) uintptr { return args[1] + args[2] }

type fixture struct {
	reg     *Registry
	backend *fakeBackend
	aborter *recordingAborter
	logs    *testutil.LogBuffer
	foo     *Target
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, logs := testutil.NewCaptureLogger()
	backend := newFakeBackend(sumWords)
	aborter := &recordingAborter{}
	reg := NewRegistry(Config{
		Logger:  logger,
		Backend: backend,
		Aborter: aborter,
		Binder: tableBinder{
			"Calc.Foo":  {Address: 0x1000, Return: "int32"},
			"Calc.Bar":  {Address: 0x2000, Static: true},
			"Calc.Wrap": {Address: 0x3000, Synthesized: true},
			"Calc.Map":  {Address: 0x4000, Open: true},
			"Calc.Nil":  {},
		},
	})
	foo, err := reg.Resolve("Calc", "Foo", []string{"int32", "int32"}, nil)
	require.NoError(t, err)
	return &fixture{reg: reg, backend: backend, aborter: aborter, logs: logs, foo: foo}
}

func (f *fixture) hook(t *testing.T, name string, priority int, precede, follow []string, cb Callback) *Handle {
	t.Helper()
	h, err := f.reg.Hook(NewOwner(name), f.foo, priority, precede, follow)
	require.NoError(t, err)
	if cb != nil {
		require.NoError(t, h.SetCallback(cb))
	}
	return h
}

// attached attaches h and returns the artifacts that simulate Foo.
func (f *fixture) attached(t *testing.T, h *Handle) *fakeArtifacts {
	t.Helper()
	require.NoError(t, h.Attach())
	a := f.backend.artifacts(h.Target())
	require.NotNil(t, a)
	return a
}

var errBoom = errors.New("boom")

package hook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/hookchain/internal/testutil"
)

func TestUnit_Lifecycle(t *testing.T) {
	f := newFixture(t)
	h := f.hook(t, "life", 0, nil, nil, nil)
	u := h.Unit()

	assert.Equal(t, StateUnbuilt, u.State())

	_, err := u.InvokeOriginal([]uintptr{0, 5, 7, 0})
	require.ErrorIs(t, err, ErrNeverAttached)
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)

	require.NoError(t, u.Build())
	require.NoError(t, u.Build())
	assert.Equal(t, StateBuilt, u.State())
	assert.Equal(t, 1, f.backend.builds)

	arts := f.attached(t, h)
	require.NoError(t, h.Attach())
	assert.Equal(t, StateAttached, u.State())
	assert.Equal(t, 1, arts.installs, "attach is idempotent")

	v, err := u.InvokeOriginal([]uintptr{0, 5, 7, 0})
	require.NoError(t, err)
	assert.Equal(t, uintptr(12), v)

	_, err = u.InvokeOriginal([]uintptr{0, 5})
	require.ErrorAs(t, err, &ie)

	require.NoError(t, h.Detach())
	require.NoError(t, h.Detach())
	assert.Equal(t, StateDetached, u.State())
	assert.Equal(t, 1, arts.uninstalls)

	_, err = u.InvokeOriginal([]uintptr{0, 5, 7, 0})
	require.ErrorIs(t, err, ErrDetached)

	require.NoError(t, h.Attach())
	assert.Equal(t, StateAttached, u.State())
	assert.Equal(t, 1, f.backend.builds, "reattach reuses the generated code")
	assert.Equal(t, 0, f.aborter.count())
}

func TestUnit_BuildFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.backend.buildErr = errBoom
	h := f.hook(t, "doomed", 0, nil, nil, nil)

	err := h.Attach()
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, f.aborter.count())
	assert.Contains(t, f.logs.String(), "Unrecoverable hook failure")
}

func TestUnit_InstallFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.backend.installErr = errBoom
	h := f.hook(t, "doomed", 0, nil, nil, nil)

	require.ErrorIs(t, h.Attach(), errBoom)
	assert.Equal(t, 1, f.aborter.count())
	assert.Equal(t, StateBuilt, h.Unit().State())
}

func TestUnit_SharedPerTarget(t *testing.T) {
	f := newFixture(t)
	h1 := f.hook(t, "one", 0, nil, nil, nil)
	h2 := f.hook(t, "two", 0, nil, nil, nil)

	assert.Same(t, h1.Unit(), h2.Unit())
	assert.Same(t, h1.Chain(), h2.Chain())
	assert.Same(t, f.reg.Unit(f.foo), h1.Unit())
	assert.Same(t, f.reg.Chain(f.foo), h1.Chain())
	assert.Len(t, f.reg.Targets(), 1)
}

func TestHook_Errors(t *testing.T) {
	t.Run("prepare failure is a resolution error", func(t *testing.T) {
		f := newFixture(t)
		f.backend.prepareErr = errBoom
		_, err := f.reg.Hook(NewOwner("x"), f.foo, 0, nil, nil)
		var re *ResolutionError
		require.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 0, f.aborter.count())
	})

	t.Run("no backend", func(t *testing.T) {
		reg := NewRegistry(Config{Aborter: &recordingAborter{}, Binder: tableBinder{"Calc.Foo": {Address: 1}}})
		target, err := reg.Resolve("Calc", "Foo", nil, nil)
		require.NoError(t, err)
		_, err = reg.Hook(NewOwner("x"), target, 0, nil, nil)
		require.ErrorIs(t, err, ErrNoBackend)
	})

	t.Run("nil target", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.reg.Hook(NewOwner("x"), nil, 0, nil, nil)
		var re *ResolutionError
		require.ErrorAs(t, err, &re)
	})

	t.Run("overlapping constraints", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.reg.Hook(NewOwner("x"), f.foo, 0, []string{"y"}, []string{"y"})
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, ErrOverlappingConstraints)
		assert.Equal(t, 0, f.reg.Chain(f.foo).Len())
	})
}

func TestHandle_OwnerCapability(t *testing.T) {
	f := newFixture(t)
	h := f.hook(t, "owner", 0, nil, nil, nil)

	impostor := NewOwner("owner")
	err := h.Registration().SetCallback(impostor, func(*ReturnCell, []*Cell) error { return nil })
	require.ErrorIs(t, err, ErrNotOwner)

	require.ErrorIs(t, h.SetCallback(nil), ErrMissingCallback)
	require.NoError(t, h.Remove())
	assert.Equal(t, 0, h.Chain().Len())
}

func TestHandle_AddCallbackRunsInOrder(t *testing.T) {
	f := newFixture(t)
	var order []int
	h := f.hook(t, "multi", 0, nil, nil, func(_ *ReturnCell, args []*Cell) error {
		order = append(order, 1)
		args[1].OverrideInt(1)
		return nil
	})
	require.NoError(t, h.AddCallback(func(_ *ReturnCell, args []*Cell) error {
		order = append(order, 2)
		cur, _ := args[1].Current()
		assert.Equal(t, uintptr(1), cur, "earlier callback of the same owner was committed")
		return nil
	}))
	arts := f.attached(t, h)

	assert.Equal(t, uintptr(8), arts.call(0, 5, 7, 0))
	assert.Equal(t, []int{1, 2}, order)

	require.NoError(t, h.Registration().ClearCallbacks(h.owner))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "attached", StateAttached.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRegistry_SharedNativeEntryIsRefused(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	backend := newFakeBackend(sumWords)
	aborter := &recordingAborter{}
	reg := NewRegistry(Config{
		Logger:  logger,
		Backend: backend,
		Aborter: aborter,
		Binder: tableBinder{
			"libc.so.6.puts":                       {Address: 0xdead},
			"/lib/x86_64-linux-gnu/libc.so.6.puts": {Address: 0xdead},
		},
	})

	short, err := reg.Resolve("libc.so.6", "puts", []string{"ptr"}, nil)
	require.NoError(t, err)
	long, err := reg.Resolve("/lib/x86_64-linux-gnu/libc.so.6", "puts", []string{"ptr"}, nil)
	require.NoError(t, err)
	wider, err := reg.Resolve("libc.so.6", "puts", []string{"ptr", "int32"}, nil)
	require.NoError(t, err)
	require.Equal(t, short.Address(), long.Address())

	h, err := reg.Hook(NewOwner("first"), short, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.Attach())

	for _, other := range []*Target{long, wider} {
		_, err := reg.Hook(NewOwner("second"), other, 0, nil, nil)
		var re *ResolutionError
		require.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, ErrAddressClaimed)
		assert.Contains(t, err.Error(), short.FullName())

		require.ErrorIs(t, reg.Unit(other).Attach(), ErrAddressClaimed)
		assert.Equal(t, StateUnbuilt, reg.Unit(other).State())
		assert.Equal(t, 0, reg.Chain(other).Len())
	}

	assert.Equal(t, 1, backend.builds)
	assert.Equal(t, StateAttached, h.Unit().State())
	assert.Equal(t, 0, aborter.count())
	assert.Contains(t, logs.String(), "already hooked")

	again, err := reg.Hook(NewOwner("third"), short, 0, nil, nil)
	require.NoError(t, err, "the claiming target keeps accepting owners")
	assert.Same(t, h.Unit(), again.Unit())
}

func TestUnit_ConcurrentFirstAttachBuildsOnce(t *testing.T) {
	f := newFixture(t)
	h := f.hook(t, "racer", 0, nil, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Attach()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.backend.builds)
	assert.Equal(t, StateAttached, h.Unit().State())
	assert.Equal(t, 1, f.backend.artifacts(f.foo).installs)
	assert.Equal(t, 0, f.aborter.count())
}

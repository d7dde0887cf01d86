//go:build linux || darwin || freebsd

// Package native generates the machine-level pieces of an interception
// unit: a libffi closure that serves as the redirection entry point, and a
// detour trampoline that serves as the original path.
//
// Every target is treated as a C-ABI function taking Arity() pointer-sized
// words and returning one. The closure packs its incoming words into a
// slice (instance, declared parameters, method identity) and hands it to
// the unit's dispatch entry.
//
// Importing this package requires libffi to be loadable at run time.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/jupiterrider/ffi"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/internal/detour"
	"github.com/coral-mesh/hookchain/pkg/hook"
)

// Backend implements hook.Backend on top of libffi and detour patches.
type Backend struct {
	logger zerolog.Logger

	mu      sync.Mutex
	patches map[uintptr]*detour.Patch
	owners  map[uintptr]*hook.Target
}

// New creates a backend.
func New(logger zerolog.Logger) *Backend {
	return &Backend{
		logger:  logger.With().Str("component", "native-backend").Logger(),
		patches: make(map[uintptr]*detour.Patch),
		owners:  make(map[uintptr]*hook.Target),
	}
}

// Prepare analyzes the target's prologue and writes its trampoline. It is
// safe to call more than once; the patch is created once per address, and
// a different target resolving to the same address is refused.
func (b *Backend) Prepare(t *hook.Target) error {
	_, err := b.patch(t)
	return err
}

func (b *Backend) patch(t *hook.Target) (*detour.Patch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, ok := b.owners[t.Address()]; ok && !owner.Equal(t) {
		return nil, &hook.ResolutionError{
			Target: t.FullName(),
			Err:    fmt.Errorf("%w: %s at %#x", hook.ErrAddressClaimed, owner.FullName(), t.Address()),
		}
	}
	if p, ok := b.patches[t.Address()]; ok {
		return p, nil
	}
	p, err := detour.Prepare(t.Address())
	if err != nil {
		return nil, fmt.Errorf("prepare detour for %s: %w", t.FullName(), err)
	}
	b.patches[t.Address()] = p
	b.owners[t.Address()] = t

	b.logger.Debug().
		Str("target", t.FullName()).
		Int("stolen", p.Plan().Stolen).
		Bool("relocated", p.Plan().Relocatable()).
		Msgf("Prepared trampoline at %#x", p.Trampoline())
	return p, nil
}

// Build creates the closure and binds it to entry. The returned artifacts
// install the detour on demand.
func (b *Backend) Build(t *hook.Target, entry hook.Entry) (hook.Artifacts, error) {
	p, err := b.patch(t)
	if err != nil {
		return nil, err
	}

	cif, err := newCif(t.Arity())
	if err != nil {
		return nil, err
	}

	code, err := newClosure(cif, t.Arity(), entry)
	if err != nil {
		return nil, err
	}

	b.logger.Debug().
		Str("target", t.FullName()).
		Int("arity", t.Arity()).
		Msgf("Generated entry point at %#x", code)

	return &artifacts{cif: cif, code: code, patch: p, arity: t.Arity()}, nil
}

// newCif describes uintptr f(uintptr, ..., uintptr) with n arguments.
func newCif(n int) (*ffi.Cif, error) {
	cif := new(ffi.Cif)
	types := make([]*ffi.Type, n)
	for i := range types {
		types[i] = &ffi.TypePointer
	}
	if status := ffi.PrepCif(cif, ffi.DefaultAbi, uint32(n), &ffi.TypePointer, types...); status != ffi.OK {
		return nil, fmt.Errorf("prepare call interface for %d words: status %d", n, status)
	}
	return cif, nil
}

// closureEntry is what the shared callback needs to reach a unit.
type closureEntry struct {
	id    *uint64
	arity int
	entry hook.Entry
}

// Closures live for the life of the process; they are never freed.
var (
	closureOnce     sync.Once
	closureCallback uintptr
	closureSeq      atomic.Uint64
	closures        sync.Map // map[uint64]*closureEntry
)

func newClosure(cif *ffi.Cif, arity int, entry hook.Entry) (uintptr, error) {
	closureOnce.Do(func() {
		closureCallback = ffi.NewCallback(dispatchClosure)
	})

	var code unsafe.Pointer
	closure := ffi.ClosureAlloc(unsafe.Sizeof(ffi.Closure{}), &code)
	if closure == nil {
		return 0, fmt.Errorf("allocate closure: out of executable memory")
	}

	id := new(uint64)
	*id = closureSeq.Add(1)
	closures.Store(*id, &closureEntry{id: id, arity: arity, entry: entry})

	if status := ffi.PrepClosureLoc(closure, cif, closureCallback, unsafe.Pointer(id), code); status != ffi.OK {
		closures.Delete(*id)
		return 0, fmt.Errorf("prepare closure: status %d", status)
	}
	return uintptr(code), nil
}

// dispatchClosure runs on the native caller's thread whenever a redirected
// target is called.
func dispatchClosure(_ *ffi.Cif, ret unsafe.Pointer, args *unsafe.Pointer, userData unsafe.Pointer) uintptr {
	v, ok := closures.Load(*(*uint64)(userData))
	if !ok {
		*(*uintptr)(ret) = 0
		return 0
	}
	ce := v.(*closureEntry)

	words := make([]uintptr, ce.arity)
	for i, p := range unsafe.Slice(args, ce.arity) {
		words[i] = *(*uintptr)(p)
	}
	*(*uintptr)(ret) = ce.entry(words)
	return 0
}

type artifacts struct {
	cif   *ffi.Cif
	code  uintptr
	patch *detour.Patch
	arity int
}

func (a *artifacts) EntryPoint() uintptr { return a.code }

func (a *artifacts) Install() error { return a.patch.Install(a.code) }

func (a *artifacts) Uninstall() error { return a.patch.Remove() }

// CallOriginal calls the trampoline, which runs the stolen instructions and
// continues in the unpatched remainder of the target.
func (a *artifacts) CallOriginal(args []uintptr) (uintptr, error) {
	if len(args) != a.arity {
		return 0, fmt.Errorf("expected %d argument words, got %d", a.arity, len(args))
	}
	values := make([]unsafe.Pointer, len(args))
	for i := range args {
		values[i] = unsafe.Pointer(&args[i])
	}
	var ret uintptr
	ffi.Call(a.cif, a.patch.Trampoline(), unsafe.Pointer(&ret), values...)
	return ret, nil
}

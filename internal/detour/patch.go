//go:build linux || darwin || freebsd

package detour

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Patch is a prepared detour for one function entry. The trampoline is
// built by Prepare and stays valid for the life of the process.
type Patch struct {
	plan     *Plan
	original []byte
	tramp    uintptr

	mu        sync.Mutex
	installed bool
	dest      uintptr
}

// Inspect analyzes the entry at target for the running architecture
// without allocating or writing anything.
func Inspect(target uintptr) (*Plan, error) {
	if target == 0 {
		return nil, fmt.Errorf("%w: nil target", ErrDecode)
	}
	return Analyze(runtime.GOARCH, readCode(target, ProbeLen), target)
}

// Prepare analyzes target and writes its trampoline.
func Prepare(target uintptr) (*Patch, error) {
	plan, err := Inspect(target)
	if err != nil {
		return nil, err
	}
	code := readCode(target, ProbeLen)

	size := plan.Stolen + 32
	mem, err := allocNear(target, size)
	if err != nil {
		return nil, err
	}
	at := uintptr(unsafe.Pointer(&mem[0]))

	body, err := plan.Trampoline(code, at)
	if err != nil {
		release(mem)
		return nil, err
	}
	copy(mem, body)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		release(mem)
		return nil, fmt.Errorf("protect trampoline: %w", err)
	}
	flushICache(at, uintptr(len(body)))

	return &Patch{
		plan:     plan,
		original: append([]byte(nil), code[:plan.Stolen]...),
		tramp:    at,
	}, nil
}

// Plan returns the analysis the patch was built from.
func (p *Patch) Plan() *Plan { return p.plan }

// Trampoline returns the address that runs the original function.
func (p *Patch) Trampoline() uintptr { return p.tramp }

// Installed reports whether the entry currently jumps to a destination.
func (p *Patch) Installed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installed
}

// Install overwrites the function entry with a jump to dest. Installing
// the same destination twice is a no-op.
func (p *Patch) Install(dest uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.installed && p.dest == dest {
		return nil
	}
	jmp, err := p.plan.Jump(dest)
	if err != nil {
		return err
	}
	if err := writeCode(p.plan.PC, jmp); err != nil {
		return err
	}
	p.installed = true
	p.dest = dest
	return nil
}

// Remove restores the saved entry bytes.
func (p *Patch) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return nil
	}
	if err := writeCode(p.plan.PC, p.original); err != nil {
		return err
	}
	p.installed = false
	p.dest = 0
	return nil
}

func readCode(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n) //nolint:govet
}

// writeCode makes the pages covering [addr, addr+len(data)) writable,
// copies data and restores read+exec.
func writeCode(addr uintptr, data []byte) error {
	page := uintptr(unix.Getpagesize())
	start := addr &^ (page - 1)
	end := (addr + uintptr(len(data)) + page - 1) &^ (page - 1)
	pages := unsafe.Slice((*byte)(unsafe.Pointer(start)), end-start) //nolint:govet

	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("unprotect %#x: %w", addr, err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data) //nolint:govet
	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("protect %#x: %w", addr, err)
	}
	flushICache(addr, uintptr(len(data)))
	return nil
}

// nearRange keeps trampolines within rel32 reach of the target so that
// relocated RIP-relative operands still fit.
const (
	nearRange = 1 << 30
	nearStep  = 1 << 20
	nearTries = 512
)

// allocNear maps a writable block, trying hints around target first.
func allocNear(target uintptr, size int) ([]byte, error) {
	page := uintptr(unix.Getpagesize())
	length := (uintptr(size) + page - 1) &^ (page - 1)
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	base := target &^ (page - 1)

	for i := 1; i <= nearTries; i++ {
		for _, sign := range []int{1, -1} {
			delta := uintptr(i * nearStep)
			if sign < 0 && delta > base {
				continue
			}
			hint := base + delta
			if sign < 0 {
				hint = base - delta
			}
			// The hint is never dereferenced; the kernel treats it as advice.
			p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), length, prot, flags) //nolint:govet
			if err != nil {
				continue
			}
			if distance(uintptr(p), target) < nearRange {
				return unsafe.Slice((*byte)(p), length), nil
			}
			_ = unix.MunmapPtr(p, length)
		}
	}

	mem, err := unix.Mmap(-1, 0, int(length), prot, flags)
	if err != nil {
		return nil, fmt.Errorf("allocate trampoline: %w", err)
	}
	return mem, nil
}

func release(mem []byte) {
	_ = unix.MunmapPtr(unsafe.Pointer(&mem[0]), uintptr(len(mem)))
}

func distance(a, b uintptr) uintptr {
	if a > b {
		return a - b
	}
	return b - a
}

// CheckPatchable maps a scratch page and asks for write+exec on it, the
// permission Install needs on a function entry. Kernels enforcing W^X
// (SELinux deny_execmem, hardened runtimes, seccomp filters) refuse it.
func CheckPatchable() error {
	page := unix.Getpagesize()
	mem, err := unix.Mmap(-1, 0, page, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return fmt.Errorf("map scratch page: %w", err)
	}
	defer func() { _ = unix.Munmap(mem) }()

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("write+exec mapping refused: %w", err)
	}
	return nil
}

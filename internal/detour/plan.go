// Package detour redirects a native function entry to another address and
// keeps a trampoline that still reaches the original implementation.
//
// The first whole instructions of the target (at least as many bytes as an
// absolute jump needs) are moved to an executable trampoline, relocated
// where they are PC-relative, and followed by a jump back into the target.
// The target's entry is then overwritten with an absolute jump to the
// redirection address. Removal writes the saved bytes back.
//
// Hot-patching a function while a call into it is in flight is not
// supported.
package detour

import (
	"errors"
	"fmt"
)

var (
	// ErrRelativeAddr means a stolen instruction is PC-relative and cannot
	// be moved to the trampoline.
	ErrRelativeAddr = errors.New("relative address in stolen instructions")
	// ErrFunctionTooShort means the function returns before enough bytes
	// for the jump could be stolen.
	ErrFunctionTooShort = errors.New("function too short to patch")
	// ErrUnsupportedArch means no encoder exists for the architecture.
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrDecode means an instruction in the prologue could not be decoded.
	ErrDecode = errors.New("cannot decode prologue")
)

// ProbeLen is the number of bytes read from a function entry. It covers
// the longest jump plus the longest amd64 instruction.
const ProbeLen = 32

// Instruction is one stolen instruction.
type Instruction struct {
	Offset int
	Len    int
	Text   string
	// PCRel is the size of the PC-relative field, 0 if none.
	PCRel    int
	PCRelOff int
}

// Plan describes how the entry of one function will be patched.
type Plan struct {
	Arch         string
	PC           uintptr
	Stolen       int
	Instructions []Instruction
}

type encoder interface {
	jumpLen() int
	analyze(code []byte, pc uintptr) (*Plan, error)
	jump(from, to uintptr, pad int) []byte
	relocate(p *Plan, code []byte, at uintptr) ([]byte, error)
}

func encoderFor(arch string) (encoder, error) {
	switch arch {
	case "amd64":
		return amd64Encoder{}, nil
	case "arm64":
		return arm64Encoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, arch)
	}
}

// Supported reports whether arch has a prologue decoder.
func Supported(arch string) bool {
	_, err := encoderFor(arch)
	return err == nil
}

// Analyze decodes the prologue in code, which was read from address pc,
// and decides how many bytes must move to the trampoline.
func Analyze(arch string, code []byte, pc uintptr) (*Plan, error) {
	enc, err := encoderFor(arch)
	if err != nil {
		return nil, err
	}
	return enc.analyze(code, pc)
}

// Trampoline returns the trampoline body for placement at address at: the
// stolen instructions, relocated, followed by a jump back to PC+Stolen.
func (p *Plan) Trampoline(code []byte, at uintptr) ([]byte, error) {
	enc, err := encoderFor(p.Arch)
	if err != nil {
		return nil, err
	}
	if len(code) < p.Stolen {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrDecode, len(code), p.Stolen)
	}
	body, err := enc.relocate(p, code, at)
	if err != nil {
		return nil, err
	}
	return append(body, enc.jump(at+uintptr(len(body)), p.PC+uintptr(p.Stolen), 0)...), nil
}

// Jump returns the bytes that overwrite the entry so that it jumps to dest.
// The result is exactly Stolen bytes long.
func (p *Plan) Jump(dest uintptr) ([]byte, error) {
	enc, err := encoderFor(p.Arch)
	if err != nil {
		return nil, err
	}
	return enc.jump(p.PC, dest, p.Stolen-enc.jumpLen()), nil
}

// Relocatable reports whether any stolen instruction needs relocation.
func (p *Plan) Relocatable() bool {
	for _, in := range p.Instructions {
		if in.PCRel > 0 {
			return true
		}
	}
	return false
}

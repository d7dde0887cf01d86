package detour

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// amd64JumpLen is the size of "jmp qword ptr [rip+0]" followed by the
// absolute destination.
const amd64JumpLen = 14

type amd64Encoder struct{}

func (amd64Encoder) jumpLen() int { return amd64JumpLen }

func (amd64Encoder) analyze(code []byte, pc uintptr) (*Plan, error) {
	p := &Plan{Arch: "amd64", PC: pc}

	off := 0
	for off < amd64JumpLen {
		if off >= len(code) {
			return nil, fmt.Errorf("%w: ran out of bytes at offset %d", ErrDecode, off)
		}
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: offset %d: %v", ErrDecode, off, err)
		}

		switch inst.Op {
		case x86asm.RET, x86asm.LRET, x86asm.INT, x86asm.UD1, x86asm.UD2:
			return nil, fmt.Errorf("%w: %s at offset %d", ErrFunctionTooShort, inst.Op, off)
		}
		// Short branches cannot reach back from the trampoline.
		if inst.PCRel > 0 && inst.PCRel < 4 {
			return nil, fmt.Errorf("%w: %s at offset %d", ErrRelativeAddr, inst.Op, off)
		}

		p.Instructions = append(p.Instructions, Instruction{
			Offset:   off,
			Len:      inst.Len,
			Text:     x86asm.IntelSyntax(inst, uint64(pc)+uint64(off), nil),
			PCRel:    inst.PCRel,
			PCRelOff: inst.PCRelOff,
		})
		off += inst.Len
	}

	p.Stolen = off
	return p, nil
}

// jump encodes "jmp qword ptr [rip+0]; .quad to" and pads with nop.
func (amd64Encoder) jump(_, to uintptr, pad int) []byte {
	b := make([]byte, amd64JumpLen, amd64JumpLen+max(pad, 0))
	b[0], b[1] = 0xff, 0x25
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	for i := 0; i < pad; i++ {
		b = append(b, 0x90)
	}
	return b
}

// relocate copies the stolen bytes and rewrites every rel32/disp32 field
// so it still points at the same absolute address from at.
func (amd64Encoder) relocate(p *Plan, code []byte, at uintptr) ([]byte, error) {
	out := make([]byte, p.Stolen)
	copy(out, code[:p.Stolen])

	for _, in := range p.Instructions {
		if in.PCRel == 0 {
			continue
		}
		field := in.Offset + in.PCRelOff
		disp := int64(int32(binary.LittleEndian.Uint32(out[field:])))
		next := int64(in.Offset + in.Len)

		abs := int64(p.PC) + next + disp
		moved := abs - (int64(at) + next)
		if moved < math.MinInt32 || moved > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %q cannot reach %#x from %#x", ErrRelativeAddr, in.Text, abs, at)
		}
		binary.LittleEndian.PutUint32(out[field:], uint32(int32(moved)))
	}
	return out, nil
}

package detour

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

const (
	arm64InstLen  = 4
	arm64JumpLen  = 16
	arm64LdrX16   = 0x58000050 // ldr x16, #8
	arm64BrX16    = 0xd61f0200 // br x16
	arm64Nop      = 0xd503201f
	arm64MaxSteal = arm64JumpLen / arm64InstLen
)

type arm64Encoder struct{}

func (arm64Encoder) jumpLen() int { return arm64JumpLen }

func (arm64Encoder) analyze(code []byte, pc uintptr) (*Plan, error) {
	p := &Plan{Arch: "arm64", PC: pc}

	for i := 0; i < arm64MaxSteal; i++ {
		off := i * arm64InstLen
		if off+arm64InstLen > len(code) {
			return nil, fmt.Errorf("%w: ran out of bytes at offset %d", ErrDecode, off)
		}
		inst, err := arm64asm.Decode(code[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: offset %d: %v", ErrDecode, off, err)
		}
		text := arm64asm.GNUSyntax(inst)

		switch inst.Op {
		case arm64asm.RET, arm64asm.BR, arm64asm.BRK, arm64asm.HLT:
			return nil, fmt.Errorf("%w: %s at offset %d", ErrFunctionTooShort, text, off)
		}
		for _, arg := range inst.Args {
			if arg == nil {
				break
			}
			if _, ok := arg.(arm64asm.PCRel); ok {
				return nil, fmt.Errorf("%w: %s at offset %d", ErrRelativeAddr, text, off)
			}
		}

		p.Instructions = append(p.Instructions, Instruction{Offset: off, Len: arm64InstLen, Text: text})
	}

	p.Stolen = arm64JumpLen
	return p, nil
}

// jump encodes "ldr x16, #8; br x16; .quad to". x16 is the intra-procedure
// scratch register, so clobbering it at a call boundary is allowed.
func (arm64Encoder) jump(_, to uintptr, pad int) []byte {
	b := make([]byte, arm64JumpLen, arm64JumpLen+max(pad, 0))
	binary.LittleEndian.PutUint32(b[0:], arm64LdrX16)
	binary.LittleEndian.PutUint32(b[4:], arm64BrX16)
	binary.LittleEndian.PutUint64(b[8:], uint64(to))
	for i := 0; i+arm64InstLen <= pad; i += arm64InstLen {
		b = binary.LittleEndian.AppendUint32(b, arm64Nop)
	}
	return b
}

// relocate copies the stolen instructions unchanged; analyze already
// rejected anything PC-relative.
func (arm64Encoder) relocate(p *Plan, code []byte, _ uintptr) ([]byte, error) {
	out := make([]byte, p.Stolen)
	copy(out, code[:p.Stolen])
	return out, nil
}

package binder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LocationType is where a parameter lives on entry.
type LocationType int

const (
	LocationUnknown LocationType = iota
	LocationRegister
	LocationFrameBase
	LocationMemory
)

// Location is a decoded single-operation DWARF location expression.
type Location struct {
	Type     LocationType
	Register int
	Offset   int64
	Address  uint64
}

// DWARF location opcodes.
const (
	opAddr   = 0x03
	opReg0   = 0x50
	opReg31  = 0x6f
	opBreg0  = 0x70
	opBreg31 = 0x8f
	opRegx   = 0x90
	opFbreg  = 0x91
)

var errTruncated = errors.New("truncated location expression")

// parseLocation decodes the common parameter locations: DW_OP_reg*,
// DW_OP_regx, DW_OP_fbreg, DW_OP_breg* and DW_OP_addr.
func parseLocation(expr []byte) (*Location, error) {
	if len(expr) == 0 {
		return nil, errors.New("empty location expression")
	}

	op := expr[0]
	switch {
	case op >= opReg0 && op <= opReg31:
		return &Location{Type: LocationRegister, Register: int(op - opReg0)}, nil

	case op == opRegx:
		reg, n := uleb128(expr[1:])
		if n == 0 {
			return nil, fmt.Errorf("DW_OP_regx: %w", errTruncated)
		}
		return &Location{Type: LocationRegister, Register: int(reg)}, nil

	case op == opFbreg:
		off, n := sleb128(expr[1:])
		if n == 0 {
			return nil, fmt.Errorf("DW_OP_fbreg: %w", errTruncated)
		}
		return &Location{Type: LocationFrameBase, Offset: off}, nil

	case op >= opBreg0 && op <= opBreg31:
		off, n := sleb128(expr[1:])
		if n == 0 {
			return nil, fmt.Errorf("DW_OP_breg: %w", errTruncated)
		}
		return &Location{Type: LocationRegister, Register: int(op - opBreg0), Offset: off}, nil

	case op == opAddr:
		if len(expr) < 9 {
			return nil, fmt.Errorf("DW_OP_addr: %w", errTruncated)
		}
		return &Location{Type: LocationMemory, Address: binary.LittleEndian.Uint64(expr[1:9])}, nil
	}

	return nil, fmt.Errorf("unsupported location opcode: 0x%02x", op)
}

func uleb128(data []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(data) && i < 10; i++ {
		v |= uint64(data[i]&0x7f) << shift
		if data[i]&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

func sleb128(data []byte) (int64, int) {
	var v int64
	var shift uint
	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -(1 << shift)
			}
			return v, i + 1
		}
	}
	return 0, 0
}

func (l *Location) String() string {
	switch l.Type {
	case LocationRegister:
		if l.Offset != 0 {
			return fmt.Sprintf("reg%d%+d", l.Register, l.Offset)
		}
		return fmt.Sprintf("reg%d", l.Register)
	case LocationFrameBase:
		return fmt.Sprintf("fbreg%+d", l.Offset)
	case LocationMemory:
		return fmt.Sprintf("addr:%#x", l.Address)
	default:
		return "<unknown>"
	}
}

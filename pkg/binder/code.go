package binder

import (
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"io"
)

// ErrNoCode means no loadable section covers the requested address.
var ErrNoCode = errors.New("address is not inside a code section")

// section is the part of an ELF or Mach-O section needed to read code.
type section struct {
	name string
	addr uint64
	size uint64
	r    io.ReaderAt
}

func elfArch(m elf.Machine) string {
	switch m {
	case elf.EM_X86_64:
		return "amd64"
	case elf.EM_AARCH64:
		return "arm64"
	default:
		return m.String()
	}
}

func machoArch(c macho.Cpu) string {
	switch c {
	case macho.CpuAmd64:
		return "amd64"
	case macho.CpuArm64:
		return "arm64"
	default:
		return c.String()
	}
}

func elfSections(f *elf.File) []section {
	var out []section
	for _, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		out = append(out, section{name: s.Name, addr: s.Addr, size: s.Size, r: s})
	}
	return out
}

func machoSections(f *macho.File) []section {
	var out []section
	for _, s := range f.Sections {
		if s.Seg != "__TEXT" {
			continue
		}
		out = append(out, section{name: s.Name, addr: s.Addr, size: s.Size, r: s})
	}
	return out
}

// Arch returns the binary's machine type as a GOARCH name when known.
func (b *SymbolBinder) Arch() string { return b.arch }

// Code reads up to n bytes of fn's link-time code. Fewer bytes are returned
// when fn's size or its section ends first.
func (b *SymbolBinder) Code(fn *Function, n int) ([]byte, error) {
	want := uint64(n)
	if fn.Size > 0 && fn.Size < want {
		want = fn.Size
	}

	for _, s := range b.sections {
		if fn.Address < s.addr || fn.Address >= s.addr+s.size {
			continue
		}
		if end := s.addr + s.size; fn.Address+want > end {
			want = end - fn.Address
		}
		buf := make([]byte, want)
		if _, err := s.r.ReadAt(buf, int64(fn.Address-s.addr)); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read %s from %s: %w", fn.Name, s.name, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%s at %#x: %w", fn.Name, fn.Address, ErrNoCode)
}

// Package binder maps member references to native entry addresses.
//
// SymbolBinder reads a binary's DWARF info (falling back to its symbol
// table when the binary was built with -ldflags=-w), LibraryBinder looks
// exports up in shared libraries, and Table is a static map. All of them
// implement hook.Binder.
package binder

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// defaultCacheSize bounds the number of parsed functions kept per binary.
const defaultCacheSize = 1024

// Param describes one formal parameter found in DWARF.
type Param struct {
	Name     string
	Type     string
	Location string
}

// Function is what a binary knows about one function.
type Function struct {
	Name    string
	Address uint64
	Size    uint64
	Params  []Param
	Return  string
	// Synthesized marks compiler-generated wrappers and closures.
	Synthesized bool
}

// Symbol is one entry of the binary's symbol table.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
}

// SymbolBinder resolves functions of one binary.
type SymbolBinder struct {
	logger zerolog.Logger
	path   string
	dwarf  *dwarf.Data
	closer io.Closer
	bias   uint64
	arch   string

	sections    []section
	loadSymbols func() ([]Symbol, error)

	symOnce sync.Once
	symbols []Symbol
	symErr  error

	cache *lruCache
}

// Open reads the ELF or Mach-O binary at path. Addresses are reported as
// linked; use WithBias to translate them for a loaded image.
func Open(path string, logger zerolog.Logger) (*SymbolBinder, error) {
	b := &SymbolBinder{
		logger: logger.With().Str("component", "symbol-binder").Str("binary", path).Logger(),
		path:   path,
		cache:  newLRUCache(defaultCacheSize),
	}

	if f, err := elf.Open(path); err == nil {
		b.closer = f
		b.arch = elfArch(f.Machine)
		b.sections = elfSections(f)
		b.loadSymbols = func() ([]Symbol, error) { return elfSymbols(f) }
		if d, derr := f.DWARF(); derr == nil {
			b.dwarf = d
		} else {
			b.noDWARF(derr)
		}
		return b, nil
	}

	f, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s as ELF or Mach-O: %w", path, err)
	}
	b.closer = f
	b.arch = machoArch(f.Cpu)
	b.sections = machoSections(f)
	b.loadSymbols = func() ([]Symbol, error) { return machoSymbols(f) }
	if d, derr := f.DWARF(); derr == nil {
		b.dwarf = d
	} else {
		b.noDWARF(derr)
	}
	return b, nil
}

func (b *SymbolBinder) noDWARF(err error) {
	b.logger.Warn().Err(err).Msg("No DWARF debug info found in binary, falling back to the symbol table")
	b.logger.Warn().Msg("Parameter and return types are unavailable; rebuild without -ldflags=\"-w\" for full metadata")
}

// OpenSelf opens the running executable and computes the load bias from
// the address of this function, so bound addresses are callable in-process.
func OpenSelf(logger zerolog.Logger) (*SymbolBinder, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	b, err := Open(path, logger)
	if err != nil {
		return nil, err
	}

	const anchor = "github.com/coral-mesh/hookchain/pkg/binder.OpenSelf"
	sym, err := b.symbol(anchor)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("cannot compute load bias: %w", err)
	}
	b.bias = uint64(reflect.ValueOf(OpenSelf).Pointer()) - sym.Value

	b.logger.Info().
		Int("pid", os.Getpid()).
		Bool("dwarf", b.HasDWARF()).
		Uint64("bias", b.bias).
		Msg("Initialized symbol binder for the running executable")
	return b, nil
}

// WithBias sets the difference between runtime and link-time addresses.
func (b *SymbolBinder) WithBias(bias uint64) *SymbolBinder {
	b.bias = bias
	return b
}

// Close releases the binary.
func (b *SymbolBinder) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// HasDWARF reports whether DWARF debug info is available.
func (b *SymbolBinder) HasDWARF() bool { return b.dwarf != nil }

// Path returns the binary path.
func (b *SymbolBinder) Path() string { return b.path }

// Bind implements hook.Binder. The symbol looked up is owner + "." + name,
// or name alone when owner is empty. Go methods are addressed with owners
// such as "main.(*Player)".
func (b *SymbolBinder) Bind(owner, name string, sig hook.Signature) (hook.Binding, error) {
	symbol := name
	if owner != "" {
		symbol = owner + "." + name
	}

	fn, err := b.Function(symbol)
	if err != nil {
		return hook.Binding{}, fmt.Errorf("%w: %v", hook.ErrNotCallable, err)
	}

	if len(sig.Params) > 0 && len(fn.Params) > 0 && len(fn.Params) < len(sig.Params) {
		b.logger.Debug().
			Str("function", fn.Name).
			Int("dwarf_params", len(fn.Params)).
			Int("declared_params", len(sig.Params)).
			Msg("Declared parameters exceed the ones found in DWARF")
	}

	return hook.Binding{
		Address:     uintptr(fn.Address + b.bias),
		Static:      !strings.Contains(owner, "("),
		Return:      fn.Return,
		Synthesized: fn.Synthesized,
		Open:        len(sig.Generics) == 0 && strings.Contains(fn.Name, "[...]"),
	}, nil
}

// Function returns metadata for the function named name. A name without
// package qualifier matches any function whose name ends in "."+name.
func (b *SymbolBinder) Function(name string) (*Function, error) {
	if cached, ok := b.cache.Get(name); ok {
		b.logger.Debug().Str("function", name).Msg("Cache hit for function metadata")
		return cached, nil
	}

	var (
		fn  *Function
		err error
	)
	if b.dwarf != nil {
		fn, err = b.searchDWARF(name)
	}
	if b.dwarf == nil || err != nil {
		var sym Symbol
		sym, err = b.symbol(name)
		if err == nil {
			fn = &Function{Name: sym.Name, Address: sym.Value, Size: sym.Size}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("function %s not found: %w", name, err)
	}

	fn.Synthesized = IsSynthesized(fn.Name)
	b.cache.Put(name, fn)

	b.logger.Debug().
		Str("function", fn.Name).
		Uint64("address", fn.Address).
		Int("params", len(fn.Params)).
		Msg("Found function metadata")
	return fn, nil
}

// ListFunctions returns the sorted names of functions matching pattern.
func (b *SymbolBinder) ListFunctions(pattern string) ([]string, error) {
	var names []string

	if b.dwarf != nil {
		r := b.dwarf.Reader()
		for {
			entry, err := r.Next()
			if err != nil || entry == nil {
				break
			}
			if entry.Tag != dwarf.TagSubprogram {
				continue
			}
			if name, ok := entry.Val(dwarf.AttrName).(string); ok && matchesPattern(name, pattern) {
				names = append(names, name)
			}
		}
	} else {
		syms, err := b.allSymbols()
		if err != nil {
			return nil, err
		}
		for _, s := range syms {
			if matchesPattern(s.Name, pattern) {
				names = append(names, s.Name)
			}
		}
	}

	sort.Strings(names)
	return slices.Compact(names), nil
}

func (b *SymbolBinder) searchDWARF(name string) (*Function, error) {
	r := b.dwarf.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		full, _ := entry.Val(dwarf.AttrName).(string)
		if full != name && !strings.HasSuffix(full, "."+name) {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}

		lowPC, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}
		fn := &Function{Name: full, Address: lowPC}
		if high, ok := entry.Val(dwarf.AttrHighpc).(int64); ok {
			fn.Size = uint64(high)
		}
		if entry.Children {
			fn.Params, fn.Return = b.parseParams(r)
		}
		return fn, nil
	}
	return nil, errors.New("not found in DWARF")
}

// parseParams reads the children of a subprogram entry. Go marks results
// with DW_AT_variable_parameter; the first one becomes the return type.
func (b *SymbolBinder) parseParams(r *dwarf.Reader) ([]Param, string) {
	var (
		params []Param
		ret    string
	)
	for {
		entry, err := r.Next()
		if err != nil || entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag != dwarf.TagFormalParameter {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}

		typ := entryType(entry, b.dwarf)
		if isResult, _ := entry.Val(dwarf.AttrVarParam).(bool); isResult {
			if ret == "" {
				ret = typ
			}
			continue
		}

		p := Param{Name: entryName(entry), Type: typ}
		if expr, ok := entry.Val(dwarf.AttrLocation).([]byte); ok {
			if loc, err := parseLocation(expr); err == nil {
				p.Location = loc.String()
			}
		}
		params = append(params, p)
	}
	return params, ret
}

func entryName(entry *dwarf.Entry) string {
	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		return name
	}
	return "<unnamed>"
}

func entryType(entry *dwarf.Entry, d *dwarf.Data) string {
	off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return "<unknown>"
	}
	t, err := d.Type(off)
	if err != nil {
		return "<unknown>"
	}
	return t.String()
}

func (b *SymbolBinder) allSymbols() ([]Symbol, error) {
	b.symOnce.Do(func() {
		b.symbols, b.symErr = b.loadSymbols()
	})
	return b.symbols, b.symErr
}

func (b *SymbolBinder) symbol(name string) (Symbol, error) {
	syms, err := b.allSymbols()
	if err != nil {
		return Symbol{}, err
	}
	for _, s := range syms {
		if s.Name == name || strings.HasSuffix(s.Name, "."+name) {
			return s, nil
		}
	}
	return Symbol{}, fmt.Errorf("%s not found in symbol table", name)
}

func elfSymbols(f *elf.File) ([]Symbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("read ELF symbols: %w", err)
	}
	out := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		out = append(out, Symbol{Name: s.Name, Value: s.Value, Size: s.Size})
	}
	return out, nil
}

func machoSymbols(f *macho.File) ([]Symbol, error) {
	if f.Symtab == nil {
		return nil, errors.New("mach-o binary has no symbol table")
	}
	out := make([]Symbol, 0, len(f.Symtab.Syms))
	for _, s := range f.Symtab.Syms {
		if s.Value == 0 {
			continue
		}
		// Mach-O prefixes C symbols with an underscore.
		out = append(out, Symbol{Name: strings.TrimPrefix(s.Name, "_"), Value: s.Value})
	}
	return out, nil
}

// IsSynthesized reports compiler-generated entries: method values (-fm),
// closures (.funcN), deferred-call wrappers and runtime type helpers.
func IsSynthesized(name string) bool {
	switch {
	case strings.HasSuffix(name, "-fm"),
		strings.Contains(name, "·dwrap"),
		strings.Contains(name, ".gowrap"),
		strings.HasPrefix(name, "go:"),
		strings.HasPrefix(name, "type:"),
		strings.HasPrefix(name, "type.."):
		return true
	}
	i := strings.LastIndex(name, ".func")
	if i < 0 {
		return false
	}
	rest := name[i+len(".func"):]
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

// matchesPattern supports "", "*", "prefix/*" and "prefix*" patterns, and
// falls back to an exact match.
func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "/*"))
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return name == pattern
}

// Symbols returns the function symbols matching pattern, sorted by address.
func (b *SymbolBinder) Symbols(pattern string) ([]Symbol, error) {
	syms, err := b.allSymbols()
	if err != nil {
		return nil, err
	}
	var out []Symbol
	for _, s := range syms {
		if matchesPattern(s.Name, pattern) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

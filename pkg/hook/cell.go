package hook

import (
	"fmt"
	"math"
	"strings"
)

// ReturnIndex is the position reported by the return cell.
const ReturnIndex = -1

// word is one optional native word.
type word struct {
	v  uintptr
	ok bool
}

func some(v uintptr) word { return word{v: v, ok: true} }

// Cell holds one native-word-sized argument or return value for the
// duration of a single dispatch. Writes through Override stay pending
// until the callback that made them returns successfully.
//
// Cells are not safe for use from goroutines other than the one running
// the callback.
type Cell struct {
	index    int
	name     string
	typ      string
	original word
	current  word
	pending  word
}

func newArgCell(index int, name, typ string, v uintptr) *Cell {
	return &Cell{index: index, name: name, typ: typ, original: some(v), current: some(v)}
}

// Index returns the argument position, or ReturnIndex for the return cell.
func (c *Cell) Index() int { return c.index }

// Name returns the slot name ("instance", a parameter name, "method" or
// "return").
func (c *Cell) Name() string { return c.name }

// Type returns the semantic type tag of the slot.
func (c *Cell) Type() string { return c.typ }

// Original returns the value the native caller passed in. For the return
// cell it is absent until the original function has been invoked.
func (c *Cell) Original() (uintptr, bool) { return c.original.v, c.original.ok }

// Current returns the last committed value.
func (c *Cell) Current() (uintptr, bool) { return c.current.v, c.current.ok }

// Override replaces the value once the running callback returns. A later
// Override in the same callback wins.
func (c *Cell) Override(v uintptr) { c.pending = some(v) }

// Value returns the pending override if any, else the current value, else
// the original value.
func (c *Cell) Value() (uintptr, bool) {
	switch {
	case c.pending.ok:
		return c.pending.v, true
	case c.current.ok:
		return c.current.v, true
	default:
		return c.original.v, c.original.ok
	}
}

// Int returns Value as a signed integer.
func (c *Cell) Int() int64 {
	v, _ := c.Value()
	return int64(v)
}

// Float64 reinterprets Value as the bits of a float64.
func (c *Cell) Float64() float64 {
	v, _ := c.Value()
	return math.Float64frombits(uint64(v))
}

// Bool reports whether Value is non-zero.
func (c *Cell) Bool() bool {
	v, _ := c.Value()
	return v != 0
}

// OverrideInt overrides with a signed integer.
func (c *Cell) OverrideInt(v int64) { c.Override(uintptr(v)) }

// OverrideFloat64 overrides with the bits of a float64.
func (c *Cell) OverrideFloat64(v float64) { c.Override(uintptr(math.Float64bits(v))) }

// OverrideBool overrides with 1 or 0.
func (c *Cell) OverrideBool(v bool) {
	if v {
		c.Override(1)
		return
	}
	c.Override(0)
}

func (c *Cell) commit() {
	if !c.pending.ok {
		return
	}
	c.current = c.pending
	c.pending = word{}
}

func (c *Cell) discard() { c.pending = word{} }

func (c *Cell) String() string {
	var sb strings.Builder
	typ := c.typ
	if typ == "" {
		typ = "word"
	}
	fmt.Fprintf(&sb, "<%s> %s = ", typ, c.name)
	if c.original.ok {
		fmt.Fprintf(&sb, "%d", int64(c.original.v))
	} else {
		sb.WriteString("<NA>")
	}
	if c.current.ok && (!c.original.ok || c.current.v != c.original.v) {
		fmt.Fprintf(&sb, "->%d", int64(c.current.v))
	}
	if c.pending.ok {
		fmt.Fprintf(&sb, "->%d", int64(c.pending.v))
	}
	return sb.String()
}

// ReturnCell is the cell for the return value. Its original value is
// produced lazily by invoking the original function at most once.
type ReturnCell struct {
	Cell

	invoke  func() (uintptr, error)
	invoked bool
	err     error
}

func newReturnCell(typ string, invoke func() (uintptr, error)) *ReturnCell {
	return &ReturnCell{
		Cell:   Cell{index: ReturnIndex, name: "return", typ: typ},
		invoke: invoke,
	}
}

// Invoke calls the original function with the arguments' present values,
// once per dispatch. Later calls return the memoized result.
//
// Present values include the calling callback's pending overrides. If that
// callback then fails, its overrides are discarded but the result stays:
// the original has already run and is never called twice.
func (r *ReturnCell) Invoke() (uintptr, error) {
	if !r.invoked {
		r.invoked = true
		v, err := r.invoke()
		if err != nil {
			r.err = err
		} else {
			r.original = some(v)
			if !r.current.ok {
				r.current = some(v)
			}
		}
	}
	if r.err != nil {
		return 0, r.err
	}
	return r.original.v, nil
}

// Invoked reports whether the original function already ran in this dispatch.
func (r *ReturnCell) Invoked() bool { return r.invoked }

// Resolve returns the pending override, else the current value, else the
// result of invoking the original.
func (r *ReturnCell) Resolve() (uintptr, error) {
	if r.pending.ok {
		return r.pending.v, nil
	}
	if r.current.ok {
		return r.current.v, nil
	}
	return r.Invoke()
}

func hexAddr(v uintptr) string { return fmt.Sprintf("%#x", v) }

package hook

import (
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
)

// Target identifies one native function. Targets are created by a Resolver,
// deduplicated by structural equality and never mutated afterwards.
type Target struct {
	owner    string
	name     string
	params   []string
	generics []string
	static   bool
	ret      string
	address  uintptr
	key      string
	print    uint64
}

// Owner returns the owner type identity (a type, package or library name).
func (t *Target) Owner() string { return t.owner }

// Name returns the member name.
func (t *Target) Name() string { return t.name }

// Params returns a copy of the declared parameter types.
func (t *Target) Params() []string { return slices.Clone(t.params) }

// Generics returns a copy of the generic type arguments.
func (t *Target) Generics() []string { return slices.Clone(t.generics) }

// Static reports whether the member has no receiver. The instance slot is
// still part of the native signature.
func (t *Target) Static() bool { return t.static }

// Return returns the return type reported by the binder, if any.
func (t *Target) Return() string { return t.ret }

// Address returns the resolved native entry address.
func (t *Target) Address() uintptr { return t.address }

// Arity returns the number of native words passed to the target:
// the instance slot, every declared parameter and the method identity slot.
func (t *Target) Arity() int { return len(t.params) + 2 }

// Fingerprint returns a 64-bit hash of the equality key.
func (t *Target) Fingerprint() uint64 { return t.print }

// FullName renders the target as Owner.Name<G1, G2>(P1, P2).
func (t *Target) FullName() string {
	var sb strings.Builder
	if t.owner != "" {
		sb.WriteString(t.owner)
		sb.WriteByte('.')
	}
	sb.WriteString(t.name)
	if len(t.generics) > 0 {
		sb.WriteByte('<')
		sb.WriteString(strings.Join(t.generics, ", "))
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	sb.WriteString(strings.Join(t.params, ", "))
	sb.WriteByte(')')
	return sb.String()
}

func (t *Target) String() string { return t.FullName() }

// Equal reports structural equality: owner, name, generic arguments and
// parameter types all match. The address and static flag are derived from
// those and do not participate.
func (t *Target) Equal(o *Target) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return t.owner == o.owner &&
		t.name == o.name &&
		slices.Equal(t.generics, o.generics) &&
		slices.Equal(t.params, o.params)
}

// targetKey builds the equality key. Fields are separated by bytes that
// cannot appear in type names.
func targetKey(owner, name string, params, generics []string) string {
	var sb strings.Builder
	sb.WriteString(owner)
	sb.WriteByte(0)
	sb.WriteString(name)
	sb.WriteByte(0)
	for _, g := range generics {
		sb.WriteString(g)
		sb.WriteByte(1)
	}
	sb.WriteByte(0)
	for _, p := range params {
		sb.WriteString(p)
		sb.WriteByte(1)
	}
	return sb.String()
}

func newTarget(owner, name string, params, generics []string, b Binding) *Target {
	key := targetKey(owner, name, params, generics)
	return &Target{
		owner:    owner,
		name:     name,
		params:   slices.Clone(params),
		generics: slices.Clone(generics),
		static:   b.Static,
		ret:      b.Return,
		address:  b.Address,
		key:      key,
		print:    xxh3.HashString(key),
	}
}

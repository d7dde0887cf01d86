package hook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regDef struct {
	name     string
	priority int
	precede  []string
	follow   []string
}

func buildRegs(t *testing.T, defs ...regDef) []*Registration {
	t.Helper()
	regs := make([]*Registration, 0, len(defs))
	for _, s := range defs {
		r, err := NewRegistration(NewOwner(s.name), s.priority, s.precede, s.follow)
		require.NoError(t, err)
		regs = append(regs, r)
	}
	return regs
}

func owners(regs []*Registration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.Owner()
	}
	return out
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b regDef
		want int
	}{
		{"lower priority first", regDef{name: "a", priority: 1}, regDef{name: "b", priority: 2}, -1},
		{"higher priority last", regDef{name: "a", priority: 5}, regDef{name: "b", priority: 2}, 1},
		{"equal priority", regDef{name: "a"}, regDef{name: "b"}, 0},
		{"a precedes b", regDef{name: "a", priority: 9, precede: []string{"b"}}, regDef{name: "b"}, -1},
		{"b precedes a", regDef{name: "a"}, regDef{name: "b", priority: 9, precede: []string{"a"}}, 1},
		{"a follows b", regDef{name: "a", follow: []string{"b"}}, regDef{name: "b", priority: 9}, 1},
		{"b follows a", regDef{name: "a", priority: 9}, regDef{name: "b", follow: []string{"a"}}, -1},
		{"mutual precede by priority", regDef{name: "a", priority: 5, precede: []string{"b"}}, regDef{name: "b", priority: 1, precede: []string{"a"}}, 1},
		{"mutual precede tie", regDef{name: "a", priority: 1, precede: []string{"b"}}, regDef{name: "b", priority: 1, precede: []string{"a"}}, 0},
		{"mutual follow by priority", regDef{name: "a", priority: 1, follow: []string{"b"}}, regDef{name: "b", priority: 5, follow: []string{"a"}}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := buildRegs(t, tt.a, tt.b)
			assert.Equal(t, tt.want, Compare(regs[0], regs[1]))
		})
	}
}

func TestOrder_PriorityWithStableTies(t *testing.T) {
	regs := buildRegs(t,
		regDef{name: "A", priority: 10},
		regDef{name: "B", priority: 5},
		regDef{name: "C", priority: 10},
		regDef{name: "D", priority: 5},
	)
	res := orderRegistrations(regs)
	assert.Equal(t, []string{"B", "D", "A", "C"}, owners(res.order))
	assert.Empty(t, res.ambiguities)
	assert.Empty(t, res.cycles)
}

func TestOrder_ConstraintsBeatPriority(t *testing.T) {
	regs := buildRegs(t,
		regDef{name: "A", priority: 0},
		regDef{name: "B", priority: 10, precede: []string{"A"}},
		regDef{name: "C", priority: -5, follow: []string{"A"}},
	)
	res := orderRegistrations(regs)
	assert.Equal(t, []string{"B", "A", "C"}, owners(res.order))
}

func TestOrder_MutualTieKeepsInsertionOrder(t *testing.T) {
	regs := buildRegs(t,
		regDef{name: "A", priority: 1, precede: []string{"B"}},
		regDef{name: "B", priority: 1, precede: []string{"A"}},
	)
	res := orderRegistrations(regs)
	assert.Equal(t, []string{"A", "B"}, owners(res.order))
	require.Len(t, res.ambiguities, 1)
	assert.Equal(t, Ambiguity{First: "A", Second: "B", Priority: 1, Kind: "precede"}, res.ambiguities[0])
}

func TestOrder_NonTransitiveConstraints(t *testing.T) {
	// C must precede A; B is unconstrained and has the lowest free priority.
	regs := buildRegs(t,
		regDef{name: "A", priority: 0},
		regDef{name: "B", priority: 5},
		regDef{name: "C", priority: 10, precede: []string{"A"}},
	)
	res := orderRegistrations(regs)
	assert.Equal(t, []string{"B", "C", "A"}, owners(res.order))
}

func TestOrder_CycleFallsBack(t *testing.T) {
	regs := buildRegs(t,
		regDef{name: "A", precede: []string{"B"}},
		regDef{name: "B", precede: []string{"C"}},
		regDef{name: "C", precede: []string{"A"}},
	)
	res := orderRegistrations(regs)
	assert.Equal(t, []string{"A", "B", "C"}, owners(res.order))
	require.Len(t, res.cycles, 1)
	assert.Equal(t, []string{"A", "B", "C"}, res.cycles[0].Owners)
}

func TestChain_AddRemoveReorders(t *testing.T) {
	c := NewChain(nil, zerolog.Nop())
	regs := buildRegs(t,
		regDef{name: "A", priority: 2},
		regDef{name: "B", priority: 1},
	)
	for _, r := range regs {
		require.NoError(t, c.Add(r))
	}
	require.NoError(t, c.Add(regs[0]), "adding twice is a no-op")
	assert.Equal(t, []string{"B", "A"}, owners(c.Registrations()))

	require.NoError(t, c.Remove(regs[1].owner, regs[1]))
	assert.Equal(t, []string{"A"}, owners(c.Registrations()))
	assert.Equal(t, 1, c.Len())
}

func TestChain_RemoveRequiresOwnerCapability(t *testing.T) {
	c := NewChain(nil, zerolog.Nop())
	regs := buildRegs(t, regDef{name: "A"})
	require.NoError(t, c.Add(regs[0]))

	impostor := NewOwner("A")
	err := c.Remove(impostor, regs[0])
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 1, c.Len())
}

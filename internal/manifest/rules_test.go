package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_TypeErrors(t *testing.T) {
	tests := []struct {
		name string
		hook string
		want string
	}{
		{"when must be bool", `when: "args[0]"`, "when:"},
		{"arg must be integer", `args: {1: '"zero"'}`, "args[1]:"},
		{"return must be integer", `return: "ret > 1u"`, "return:"},
		{"syntax error", `return: "ret +"`, "return:"},
		{"unknown variable", `when: "health > 1u"`, "when:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, "hooks:\n  - owner: a\n    target: {name: Foo, params: [int32]}\n    "+tt.hook+"\n")
			_, err := m.Compile()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "hooks[0] (a): "+tt.want)
		})
	}
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	m := mustParse(t, `
hooks:
  - owner: a
    target: {name: Foo}
    when: "1"
  - owner: b
    target: {name: Foo}
    return: "true"
`)
	_, err := m.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hooks[0] (a)")
	assert.Contains(t, err.Error(), "hooks[1] (b)")
}

func TestRule_WhenGatesOverrides(t *testing.T) {
	reg, backend, _ := newRegistry(t)
	m := mustParse(t, `
hooks:
  - owner: clamp
    target: {type: Game, name: Damage, params: [int32]}
    when: "args[1] > 100u"
    args: {1: "100u"}
`)
	_, err := m.Apply(reg)
	require.NoError(t, err)

	arts := backend.artifacts("Damage")
	require.NotNil(t, arts)
	assert.Equal(t, uintptr(200), arts.call(1, 500, 9))
	assert.Equal(t, uintptr(40), arts.call(1, 20, 9))
}

func TestRule_ReturnReadsOriginalLazily(t *testing.T) {
	reg, backend, _ := newRegistry(t)
	m := mustParse(t, `
hooks:
  - owner: observer
    target: {type: Game, name: Delta}
    when: "target == 'Game.Delta()'"
  - owner: boost
    target: {type: Game, name: Delta}
    priority: 10
    return: "ret + 1u"
`)
	_, err := m.Apply(reg)
	require.NoError(t, err)

	arts := backend.artifacts("Delta")
	require.NotNil(t, arts)
	assert.Equal(t, uintptr(11), arts.call(0, 5))
	assert.Equal(t, 1, arts.originals)
}

func TestRule_SignedResult(t *testing.T) {
	reg, backend, _ := newRegistry(t)
	m := mustParse(t, `
hooks:
  - owner: neg
    target: {type: Game, name: Score}
    return: "-1"
`)
	_, err := m.Apply(reg)
	require.NoError(t, err)

	assert.Equal(t, ^uintptr(0), backend.artifacts("Score").call(0, 5))
}

func TestRule_OverridesMethodWord(t *testing.T) {
	reg, backend, aborter := newRegistry(t)
	m := mustParse(t, `
hooks:
  - owner: swap
    target: {type: Game, name: Tick}
    args: {1: "3u"}
`)
	_, err := m.Apply(reg)
	require.NoError(t, err)

	// Tick() carries two words, instance and method; index 1 is the method.
	assert.Equal(t, uintptr(6), backend.artifacts("Tick").call(0, 5))
	assert.Empty(t, aborter.reasons)
}

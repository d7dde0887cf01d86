package inspect

import (
	"bytes"
	"encoding/json"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/hookchain/pkg/binder"
)

var frameSetup = []byte{
	0x55,             // push rbp
	0x48, 0x89, 0xe5, // mov rbp, rsp
	0x48, 0x83, 0xec, 0x20, // sub rsp, 0x20
	0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00, // mov rax, [rip+0x10]
	0xc3,
}

func TestAnalyze_Hookable(t *testing.T) {
	r := Analyze("amd64", &binder.Function{Name: "game.tick", Address: 0x401000}, frameSetup)

	assert.True(t, r.Hookable)
	assert.Equal(t, 15, r.Stolen)
	assert.True(t, r.Relocated)
	require.Len(t, r.Instructions, 4)
	assert.Equal(t, 4, r.Instructions[3].PCRel)
	assert.Equal(t, "ff2500000000", r.Jump[:12])
	assert.Len(t, r.Jump, 2*15)
}

func TestAnalyze_NotHookable(t *testing.T) {
	short := Analyze("amd64", &binder.Function{Name: "game.zero"}, []byte{0x31, 0xc0, 0xc3, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc})
	assert.False(t, short.Hookable)
	assert.Contains(t, short.Reason, "too short")

	synth := Analyze("amd64", &binder.Function{Name: "main.main.func1", Synthesized: true}, frameSetup)
	assert.False(t, synth.Hookable)
	assert.Equal(t, "compiler-synthesized function", synth.Reason)

	arch := Analyze("riscv64", &binder.Function{Name: "game.tick"}, frameSetup)
	assert.Contains(t, arch.Reason, "unsupported architecture")
}

func TestInspectCmd_OwnBinary(t *testing.T) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		t.Skip("no prologue decoder for " + runtime.GOARCH)
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	cmd := NewInspectCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{exe, "github.com/coral-mesh/hookchain/internal/cli/inspect.Analyze", "-o", "json"})
	runErr := cmd.Execute()
	if out.Len() == 0 {
		t.Skipf("test binary cannot be inspected: %v", runErr)
	}

	var r Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, "github.com/coral-mesh/hookchain/internal/cli/inspect.Analyze", r.Function)
	assert.Equal(t, runtime.GOARCH, r.Arch)
	assert.Equal(t, r.Hookable, runErr == nil)
}

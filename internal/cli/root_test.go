package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Version(t *testing.T) {
	t.Setenv("HOOKCHAIN_CONFIG", t.TempDir())

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "hookchain version dev")
	assert.Contains(t, out.String(), "Platform: ")
}

func TestRoot_ConfiguredFormatApplies(t *testing.T) {
	t.Setenv("HOOKCHAIN_CONFIG", t.TempDir())
	t.Setenv("HOOKCHAIN_OUTPUT", "json")

	path := filepath.Join(t.TempDir(), "hooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hooks:\n  - owner: a\n    target: {name: F}\n"), 0o600))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plan", path, "--log-level", "disabled"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `"owner": "a"`)
}

func TestRoot_InvalidConfig(t *testing.T) {
	t.Setenv("HOOKCHAIN_CONFIG", t.TempDir())
	t.Setenv("HOOKCHAIN_OUTPUT", "xml")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"version"})
	assert.ErrorContains(t, cmd.Execute(), "output.format")
}

func TestRoot_RegistersCommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"symbols", "inspect", "plan", "check", "doctor", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

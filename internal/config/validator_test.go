package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *GlobalConfig)
		wantErr []string
	}{
		{name: "defaults", mutate: func(*GlobalConfig) {}},
		{name: "upper case level", mutate: func(c *GlobalConfig) { c.Log.Level = "DEBUG" }},
		{name: "missing version", mutate: func(c *GlobalConfig) { c.Version = "" }, wantErr: []string{"version"}},
		{name: "bad level", mutate: func(c *GlobalConfig) { c.Log.Level = "loud" }, wantErr: []string{"log.level"}},
		{
			name: "several errors",
			mutate: func(c *GlobalConfig) {
				c.Output.Format = "xml"
				c.Inspect.Arch = "riscv64"
			},
			wantErr: []string{"output.format", "inspect.arch", "2 errors"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultGlobalConfig()
			tt.mutate(c)
			err := c.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var multi *MultiValidationError
			require.True(t, errors.As(err, &multi))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestMultiValidationError_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", (&MultiValidationError{}).Error())
	assert.Equal(t, "a: b", (&MultiValidationError{Errors: []ValidationError{{Field: "a", Message: "b"}}}).Error())
}

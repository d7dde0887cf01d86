package helpers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/config"
	"github.com/coral-mesh/hookchain/internal/logging"
)

// Runtime is what every command needs: the merged global config and a
// logger built from it.
type Runtime struct {
	Config *config.GlobalConfig
	Logger zerolog.Logger
}

type runtimeKey struct{}

// LoadRuntime loads the global config and builds the logger. A non-empty
// logLevel overrides the configured level.
func LoadRuntime(logLevel string) (*Runtime, error) {
	cfg, err := config.NewLoader().LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	})
	return &Runtime{Config: cfg, Logger: logger}, nil
}

// WithRuntime stores rt in ctx.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom returns the runtime stored in the command's context, or
// defaults with a disabled logger when the command runs standalone.
func RuntimeFrom(cmd *cobra.Command) *Runtime {
	if ctx := cmd.Context(); ctx != nil {
		if rt, ok := ctx.Value(runtimeKey{}).(*Runtime); ok {
			return rt
		}
	}
	return &Runtime{Config: config.DefaultGlobalConfig(), Logger: zerolog.Nop()}
}

// Output resolves the output format flag against the config and returns
// the formatter for it.
func (rt *Runtime) Output(flag string) (Formatter, error) {
	format := flag
	if format == "" {
		format = rt.Config.Output.Format
	}
	if err := ValidateFormat(format, AllFormats); err != nil {
		return nil, err
	}
	f, err := NewFormatter(OutputFormat(format))
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}
	return f, nil
}

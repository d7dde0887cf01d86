package config

import "github.com/coral-mesh/hookchain/internal/constants"

// DefaultGlobalConfig returns the configuration used when no file exists.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: SchemaVersion,
		Log: LogConfig{
			Level:  constants.DefaultLogLevel,
			Pretty: true,
		},
		Output: OutputConfig{
			Format: constants.DefaultOutputFormat,
		},
	}
}

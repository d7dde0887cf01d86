// Package constants defines shared configuration constants.
package constants

const (
	ConfigFile = "config.yaml"

	DefaultDir = ".hookchain"

	// ConfigEnv overrides the base directory holding DefaultDir.
	ConfigEnv = "HOOKCHAIN_CONFIG"

	// FallbackDir is used when the user has no home directory.
	FallbackDir = "/tmp/hookchain-fallback"

	DefaultLogLevel = "info"

	// DefaultOutputFormat is the CLI output format when none is configured.
	DefaultOutputFormat = "table"
)

package config

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// GlobalConfig represents ~/.hookchain/config.yaml.
type GlobalConfig struct {
	Version string        `yaml:"version"`
	Log     LogConfig     `yaml:"log"`
	Output  OutputConfig  `yaml:"output"`
	Inspect InspectConfig `yaml:"inspect"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"HOOKCHAIN_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"HOOKCHAIN_LOG_PRETTY"`
}

// OutputConfig configures command output.
type OutputConfig struct {
	// Format is table, json or csv.
	Format string `yaml:"format" env:"HOOKCHAIN_OUTPUT"`
}

// InspectConfig configures prologue analysis of binaries on disk.
type InspectConfig struct {
	// Arch overrides the architecture used to decode prologues. Empty means
	// the binary's own machine type.
	Arch string `yaml:"arch,omitempty" env:"HOOKCHAIN_ARCH"`
	// SymbolPatterns limits `symbols` listings when no pattern is given.
	SymbolPatterns []string `yaml:"symbol_patterns,omitempty" env:"HOOKCHAIN_SYMBOL_PATTERNS"`
}

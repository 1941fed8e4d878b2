package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file. Flags win over config
// values; config values win over defaults.
type Config struct {
	// Database is the SQLite database path.
	Database string `yaml:"database"`

	// RetryInterval is the constant delay before the drain resumes after
	// a failed apply, e.g. "30s". Zero keeps the runtime default.
	RetryInterval Duration `yaml:"retry_interval"`

	// StoreSignals toggles the append-only audit log of processed events.
	// Unset keeps the runtime default (on).
	StoreSignals *bool `yaml:"store_signals"`
}

// Duration decodes YAML strings like "30s" or "5m" into a
// time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig parses the YAML config at path. A missing file is an error;
// pass an empty path to skip config loading entirely.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig merges flags and config file into the effective
// settings. The --db flag overrides the config's database path.
func resolveConfig(opts *RootOptions) (Config, error) {
	var cfg Config
	if opts.Config != "" {
		loaded, err := LoadConfig(opts.Config)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if cfg.Database == "" {
		return cfg, NewExitError(ExitCommandError, "no database: set --db or the config's database key")
	}
	return cfg, nil
}

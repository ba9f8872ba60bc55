package pipeline

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the configuration the core recognizes: the
// optimization level, strict type inference, lifetime elision, and whether
// to run IR validation.
type Config struct {
	// OptLevel selects the optimizer passes and thresholds, 0 through 3.
	OptLevel int `toml:"opt_level"`

	// Strict makes unresolved type variables at the end of inference an
	// error instead of defaulting them to ground placeholders.
	Strict bool `toml:"strict_inference"`

	// Elision enables single-input-reference lifetime elision for return
	// positions.
	Elision bool `toml:"lifetime_elision"`

	// ValidateIR runs the IR validator after lowering and again after
	// optimization. On by default; the default is the same in every build.
	ValidateIR bool `toml:"validate_ir"`
}

// DefaultConfig is the configuration used when no file is given: -O2,
// permissive inference, elision on, validation on.
func DefaultConfig() Config {
	return Config{OptLevel: 2, Elision: true, ValidateIR: true}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	if c.OptLevel < 0 || c.OptLevel > 3 {
		return fmt.Errorf("opt_level must be between 0 and 3, got %d", c.OptLevel)
	}
	return nil
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of a checking run. It is read from sigcheck.yaml;
// zero fields fall back to Default.
type Config struct {
	// Workers bounds the goroutines used by the parallel phases.
	Workers int `yaml:"workers,omitempty"`

	// MaxResolverIterations bounds the constant resolution fixpoint. The
	// loop also stops as soon as an iteration makes no progress.
	MaxResolverIterations int `yaml:"max_resolver_iterations,omitempty"`

	// MaxBlockVisits is multiplied by the number of basic blocks to bound
	// the inference fixpoint of a single method.
	MaxBlockVisits int `yaml:"max_block_visits,omitempty"`

	// LoopWideningVisits is how many times a loop header may grow a local's
	// type before the local is widened to T.untyped.
	LoopWideningVisits int `yaml:"loop_widening_visits,omitempty"`

	// FastPathMaxFiles is the largest edit the incremental fast path accepts.
	FastPathMaxFiles int `yaml:"fast_path_max_files,omitempty"`

	// FailOnInternalError turns checker bugs into run failures.
	FailOnInternalError bool `yaml:"fail_on_internal_error,omitempty"`

	// StrictUntypedAdvisories reports info diagnostics for calls on
	// T.untyped receivers in strict files.
	StrictUntypedAdvisories bool `yaml:"strict_untyped_advisories,omitempty"`

	// Ignore lists glob patterns (relative to the config file) of AST files
	// that are never loaded.
	Ignore []string `yaml:"ignore,omitempty"`
}

// Default returns the configuration used when no sigcheck.yaml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.MaxResolverIterations <= 0 {
		c.MaxResolverIterations = 100
	}
	if c.MaxBlockVisits <= 0 {
		c.MaxBlockVisits = 64
	}
	if c.LoopWideningVisits <= 0 {
		c.LoopWideningVisits = 8
	}
	if c.FastPathMaxFiles <= 0 {
		c.FastPathMaxFiles = 10
	}
}

// LoadConfig reads and parses a sigcheck.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses sigcheck.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for sigcheck.yaml starting from dir and walking up to
// parent directories. It returns an empty path and nil error if none exists.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.Workers < 0 {
		return fmt.Errorf("%s: workers must not be negative", path)
	}
	if c.MaxResolverIterations < 0 || c.MaxBlockVisits < 0 || c.LoopWideningVisits < 0 {
		return fmt.Errorf("%s: iteration bounds must not be negative", path)
	}
	if c.LoopWideningVisits > 0 && c.MaxBlockVisits > 0 && c.LoopWideningVisits >= c.MaxBlockVisits {
		return fmt.Errorf("%s: loop_widening_visits (%d) must be below max_block_visits (%d)",
			path, c.LoopWideningVisits, c.MaxBlockVisits)
	}
	for i, pattern := range c.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%s: ignore[%d]: bad pattern %q: %w", path, i, pattern, err)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/sw965/mctspo/regpolicy"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the policy solver and the search coefficient.
type Config struct {
	Solver SolverConfig `yaml:"solver"`
	Search SearchConfig `yaml:"search"`
}

// SolverConfig configures the bisection.
type SolverConfig struct {
	// Tolerance on |sum(pi) - 1|
	Epsilon float32 `yaml:"epsilon"`
	// Iteration cap of the alpha search
	MaxIterations int `yaml:"max_iterations"`
}

// SearchConfig configures lambda = c * sqrt(N) / (|A| + N).
type SearchConfig struct {
	C float32 `yaml:"c"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Epsilon:       regpolicy.DefaultEpsilon,
			MaxIterations: regpolicy.DefaultMaxIterations,
		},
		Search: SearchConfig{
			C: 1.25,
		},
	}
}

// Load reads the config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Solver.Epsilon <= 0 {
		return fmt.Errorf("solver.epsilon must be positive, got %g", c.Solver.Epsilon)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Search.C <= 0 {
		return fmt.Errorf("search.c must be positive, got %g", c.Search.C)
	}
	return nil
}

func (c *Config) NewSolver() regpolicy.Solver[float32] {
	return regpolicy.Solver[float32]{
		Epsilon:       c.Solver.Epsilon,
		MaxIterations: c.Solver.MaxIterations,
	}
}

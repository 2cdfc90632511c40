// Package config loads process definition files.
//
// A definition file is YAML:
//
//	version: "1.0"
//	logging:
//	  level: info
//	  json: false
//	metrics:
//	  addr: ":9090"
//	processes:
//	  - name: api
//	    args: ["./bin/api", "--port", "${PORT}"]
//	    env:
//	      MODE: dev
//	    inherit_env: true
//	    watch: ["./bin/api"]
//	    debounce: 500ms
//	    restart: on-failure
//	    restart_limit: 5
//
// ${VAR} references in args, env values and watch paths are expanded from the
// environment of the loading process.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/butter-bot-machines/childproc/pkg/logging"
)

// Version is the only supported definition file version
const Version = "1.0"

// DefaultDebounce is used for watched processes that set no debounce
const DefaultDebounce = 250 * time.Millisecond

// Restart policies
const (
	RestartNever     = "never"
	RestartOnFailure = "on-failure"
	RestartAlways    = "always"
)

// Config represents a process definition file
type Config struct {
	Version   string          `yaml:"version"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Processes []ProcessConfig `yaml:"processes"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint
	Addr string `yaml:"addr,omitempty"`
}

// ProcessConfig describes one supervised process
type ProcessConfig struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`

	// Env is layered over the loading process's environment when InheritEnv
	// is set, and used alone otherwise
	Env        map[string]string `yaml:"env,omitempty"`
	InheritEnv bool              `yaml:"inherit_env,omitempty"`

	// Watch lists paths whose changes restart the process
	Watch    []string      `yaml:"watch,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`

	// Restart decides what happens when the process exits on its own
	Restart string `yaml:"restart,omitempty"`

	// RestartLimit caps restarts per minute; zero means unlimited
	RestartLimit int `yaml:"restart_limit,omitempty"`

	// Oneshot runs the process to completion once, collecting its output
	Oneshot bool `yaml:"oneshot,omitempty"`

	// OutputLimit caps the output a oneshot process may produce
	OutputLimit int `yaml:"output_limit,omitempty"`
}

// Parse decodes, expands and validates a definition file
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateVersion(config.Version); err != nil {
		return nil, err
	}

	config.expandEnvironment()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Process returns the process definition with the given name
func (c *Config) Process(name string) (ProcessConfig, bool) {
	for _, p := range c.Processes {
		if p.Name == name {
			return p, true
		}
	}
	return ProcessConfig{}, false
}

// ApplyEnv overrides logging and metrics settings from CHILDPROC_* variables
func (c *Config) ApplyEnv(env Environment) {
	if env.Has("log_level") {
		c.Logging.Level = env.GetString("log_level")
	}
	if env.Has("log_json") {
		c.Logging.JSON = env.GetBool("log_json")
	}
	if env.Has("metrics_addr") {
		c.Metrics.Addr = env.GetString("metrics_addr")
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if err := validateVersion(c.Version); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging level %q", ErrInvalidValue, c.Logging.Level)
	}
	if len(c.Processes) == 0 {
		return fmt.Errorf("%w: no processes defined", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Processes))
	for i, p := range c.Processes {
		if p.Name == "" {
			return fmt.Errorf("%w: process %d has no name", ErrInvalidConfig, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate process name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true

		if err := p.validate(); err != nil {
			return fmt.Errorf("process %q: %w", p.Name, err)
		}
	}
	return nil
}

func (p ProcessConfig) validate() error {
	if len(p.Args) == 0 || p.Args[0] == "" {
		return fmt.Errorf("%w: args must name a program", ErrInvalidConfig)
	}
	switch p.Restart {
	case "", RestartNever, RestartOnFailure, RestartAlways:
	default:
		return fmt.Errorf("%w: restart policy %q", ErrInvalidValue, p.Restart)
	}
	if p.Oneshot && p.Restart != "" && p.Restart != RestartNever {
		return fmt.Errorf("%w: oneshot processes cannot restart", ErrInvalidConfig)
	}
	if p.Oneshot && len(p.Watch) > 0 {
		return fmt.Errorf("%w: oneshot processes cannot watch paths", ErrInvalidConfig)
	}
	if p.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce", ErrInvalidValue)
	}
	if p.RestartLimit < 0 {
		return fmt.Errorf("%w: negative restart_limit", ErrInvalidValue)
	}
	if p.OutputLimit < 0 {
		return fmt.Errorf("%w: negative output_limit", ErrInvalidValue)
	}
	return nil
}

// validateVersion checks if the configuration version is supported
func validateVersion(version string) error {
	if version != Version {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// expandEnvironment expands ${VAR} references in configuration values
func (c *Config) expandEnvironment() {
	for i := range c.Processes {
		p := &c.Processes[i]
		for j, arg := range p.Args {
			p.Args[j] = os.ExpandEnv(arg)
		}
		for k, v := range p.Env {
			p.Env[k] = os.ExpandEnv(v)
		}
		for j, path := range p.Watch {
			p.Watch[j] = os.ExpandEnv(path)
		}
	}
	c.Metrics.Addr = os.ExpandEnv(c.Metrics.Addr)
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for i := range c.Processes {
		p := &c.Processes[i]
		if p.Restart == "" {
			p.Restart = RestartNever
		}
		if len(p.Watch) > 0 && p.Debounce == 0 {
			p.Debounce = DefaultDebounce
		}
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager loads a definition file and keeps the current configuration
type Manager struct {
	mu     sync.RWMutex
	config *Config
	path   string
	env    Environment
}

// NewManager creates a manager for the definition file at path. env, when
// non-nil, supplies CHILDPROC_* overrides applied on every load.
func NewManager(path string, env Environment) *Manager {
	return &Manager{path: path, env: env}
}

// Path returns the definition file path
func (m *Manager) Path() string {
	return m.path
}

// Load reads, validates and installs the definition file
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}
	if m.env != nil {
		config.ApplyEnv(m.env)
		if err := config.Validate(); err != nil {
			return err
		}
	}

	m.Set(config)
	return nil
}

// Get returns the current configuration, or nil before Load
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Set replaces the current configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// Save writes the current configuration to the definition file
func (m *Manager) Save() error {
	config := m.Get()
	if config == nil {
		return fmt.Errorf("%w: nothing loaded", ErrInvalidConfig)
	}

	data, err := config.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Process returns a process definition from the current configuration
func (m *Manager) Process(name string) (ProcessConfig, error) {
	config := m.Get()
	if config == nil {
		return ProcessConfig{}, ErrNotFound
	}
	p, ok := config.Process(name)
	if !ok {
		return ProcessConfig{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

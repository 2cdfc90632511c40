// Package env reads prefixed configuration overrides from environment
// variables.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended to every key looked up by New
const Prefix = "CHILDPROC_"

// Environment implements config.Environment for accessing environment variables
type Environment struct {
	prefix string
	lookup func(string) (string, bool)
}

// New creates an accessor for CHILDPROC_* variables of the current process
func New() *Environment {
	return &Environment{prefix: Prefix, lookup: os.LookupEnv}
}

// FromMap creates an accessor over a fixed set of variables. Keys in vars
// carry the prefix.
func FromMap(prefix string, vars map[string]string) *Environment {
	return &Environment{
		prefix: prefix,
		lookup: func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		},
	}
}

func (e *Environment) get(key string) string {
	v, _ := e.lookup(e.prefix + strings.ToUpper(key))
	return v
}

// GetString returns an environment variable as a string
func (e *Environment) GetString(key string) string {
	return e.get(key)
}

// GetInt returns an environment variable as an integer
func (e *Environment) GetInt(key string) int {
	return e.GetIntWithDefault(key, 0)
}

// GetBool returns an environment variable as a boolean
func (e *Environment) GetBool(key string) bool {
	return e.GetBoolWithDefault(key, false)
}

// GetDuration returns an environment variable as a duration
func (e *Environment) GetDuration(key string) time.Duration {
	return e.GetDurationWithDefault(key, 0)
}

// GetStringWithDefault returns an environment variable as a string with a default value
func (e *Environment) GetStringWithDefault(key string, defaultValue string) string {
	if val := e.get(key); val != "" {
		return val
	}
	return defaultValue
}

// GetIntWithDefault returns an environment variable as an integer with a default value
func (e *Environment) GetIntWithDefault(key string, defaultValue int) int {
	val, err := strconv.Atoi(e.get(key))
	if err != nil {
		return defaultValue
	}
	return val
}

// GetBoolWithDefault returns an environment variable as a boolean with a default value
func (e *Environment) GetBoolWithDefault(key string, defaultValue bool) bool {
	val, err := strconv.ParseBool(e.get(key))
	if err != nil {
		return defaultValue
	}
	return val
}

// GetDurationWithDefault returns an environment variable as a duration with a default value
func (e *Environment) GetDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	val, err := time.ParseDuration(e.get(key))
	if err != nil {
		return defaultValue
	}
	return val
}

// Has returns true if an environment variable is set
func (e *Environment) Has(key string) bool {
	_, exists := e.lookup(e.prefix + strings.ToUpper(key))
	return exists
}

package config

import "time"

// Environment defines the interface for environment variable access
type Environment interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	Has(key string) bool
}

// Error types for config operations
var (
	ErrInvalidVersion = Error{"unsupported configuration version"}
	ErrInvalidValue   = Error{"invalid value"}
	ErrInvalidConfig  = Error{"invalid configuration"}
	ErrNotFound       = Error{"process not found"}
)

// Error represents a configuration error
type Error struct {
	Message string
}

func (e Error) Error() string {
	return e.Message
}

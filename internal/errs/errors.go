// Package errs defines the error kinds shared by the Bayesian layer packages.
package errs

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidTopology      = errors.New("invalid topology")
)

// ConfigError describes a rejected construction-time setting.
type ConfigError struct {
	Field  string // Setting name (e.g., "mean_init", "divergence")
	Value  any    // Offending value
	Reason string // Additional details
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s=%v", ErrInvalidConfiguration, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalidConfiguration, e.Field, e.Value, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidConfiguration) hold.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// TopologyError identifies the topology entry that could not be turned into a layer.
type TopologyError struct {
	Index  int // Position of the entry in the topology list
	Value  any // The entry itself
	Reason string
}

// Error implements the error interface.
func (e *TopologyError) Error() string {
	msg := fmt.Sprintf("%s: entry %d (%v)", ErrInvalidTopology, e.Index, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrInvalidTopology) hold.
func (e *TopologyError) Unwrap() error {
	return ErrInvalidTopology
}

// Config is a shorthand for building a *ConfigError.
func Config(field string, value any, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

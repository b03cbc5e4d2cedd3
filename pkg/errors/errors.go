// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRunNotFound         = errors.New("simulation run not found")
	ErrRunHalted           = errors.New("simulation run halted")
	ErrRunFinished         = errors.New("simulation horizon reached")
	ErrEventNotFound       = errors.New("event not found")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrInvalidDecision     = errors.New("invalid policy decision")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// ConfigError reports malformed or inconsistent simulation input. It is
// always raised before the first tick runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for a named field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvariantViolation reports corrupted engine state (broken conservation,
// negative effective liquidity after a commit). The engine halts on it
// rather than repairing state.
type InvariantViolation struct {
	Tick   int64
	Phase  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at tick %d phase %s: %s", e.Tick, e.Phase, e.Detail)
}

// NewInvariantViolation builds an InvariantViolation.
func NewInvariantViolation(tick int64, phase, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{Tick: tick, Phase: phase, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is re-exports errors.Is so callers do not need both packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

package integration

import (
	"errors"
	"fmt"
)

// Severity is the escalation level of a repeated per-entity failure
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// CircuitBreakerPolicy holds the per-entity failure thresholds
type CircuitBreakerPolicy struct {
	// WarnThreshold is the last failure count still logged at Low severity
	WarnThreshold int
	// HighThreshold is the failure count from which failures are High severity
	HighThreshold int
	// DisableThreshold is the failure count at which the entity is disabled
	DisableThreshold int
}

// DefaultCircuitBreakerPolicy returns the default thresholds (3/5/10)
func DefaultCircuitBreakerPolicy() CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		WarnThreshold:    3,
		HighThreshold:    5,
		DisableThreshold: 10,
	}
}

// Validate checks the thresholds are ordered
func (p CircuitBreakerPolicy) Validate() error {
	if p.WarnThreshold <= 0 {
		return errors.New("circuit breaker: warn threshold must be positive")
	}
	if p.HighThreshold <= p.WarnThreshold {
		return fmt.Errorf("circuit breaker: high threshold (%d) must exceed warn threshold (%d)", p.HighThreshold, p.WarnThreshold)
	}
	if p.DisableThreshold <= p.HighThreshold {
		return fmt.Errorf("circuit breaker: disable threshold (%d) must exceed high threshold (%d)", p.DisableThreshold, p.HighThreshold)
	}
	return nil
}

// ShouldDisable returns true once the failure count reaches the hard threshold
func (p CircuitBreakerPolicy) ShouldDisable(consecutiveErrors int) bool {
	return consecutiveErrors >= p.DisableThreshold
}

// SeverityFor returns the log severity for the given consecutive failure count
func (p CircuitBreakerPolicy) SeverityFor(consecutiveErrors int) Severity {
	switch {
	case p.ShouldDisable(consecutiveErrors):
		return SeverityCritical
	case consecutiveErrors >= p.HighThreshold:
		return SeverityHigh
	case consecutiveErrors > p.WarnThreshold:
		return SeverityMedium
	}
	return SeverityLow
}

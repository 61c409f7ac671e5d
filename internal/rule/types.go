package rule

import (
	"fmt"
	"time"
)

// Direction is the comparison policy of a threshold rule
type Direction string

const (
	// DirectionAbove triggers when the observed value is strictly greater
	// than the threshold
	DirectionAbove Direction = "above"
	// DirectionBelow triggers when the observed value is strictly less
	// than the threshold
	DirectionBelow Direction = "below"
)

// ParseDirection converts a stored string into a Direction
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionAbove:
		return DirectionAbove, nil
	case DirectionBelow:
		return DirectionBelow, nil
	default:
		return "", fmt.Errorf("unknown direction: %q", s)
	}
}

// Valid reports whether the direction is a known value
func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// Rule defines a threshold alerting condition. The ID is assigned by the
// store and doubles as the rate-limit and dispatch-log correlation key.
type Rule struct {
	ID            int64     `json:"id"`
	Topic         string    `json:"topic"`     // matched by exact equality
	Threshold     float64   `json:"threshold"`
	Direction     Direction `json:"direction"`
	Message       string    `json:"message"` // template with {value} and {threshold}
	MaxDispatches int       `json:"maxDispatches"`
	PeriodSeconds int       `json:"periodSeconds"`
	Enabled       bool      `json:"enabled"`
}

// Period returns the sliding-window length
func (r *Rule) Period() time.Duration {
	return time.Duration(r.PeriodSeconds) * time.Second
}

// Triggered reports whether value fires this rule. Equality never triggers,
// regardless of direction.
func (r *Rule) Triggered(value float64) bool {
	switch r.Direction {
	case DirectionAbove:
		return value > r.Threshold
	case DirectionBelow:
		return value < r.Threshold
	default:
		return false
	}
}

// Observation is one (topic, payload) pair delivered by the transport
type Observation struct {
	Topic   string
	Payload []byte
}

// RuleValidationError represents a rule validation error
type RuleValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DispatchLogEntry records one counted notification dispatch
type DispatchLogEntry struct {
	ID        int64
	RuleID    int64
	Timestamp int64 // seconds since epoch
}

package rule

import "math"

// Validate checks a rule definition before it is stored or loaded.
// It returns the first violation found as a *RuleValidationError.
func Validate(r *Rule) error {
	if r.Topic == "" {
		return &RuleValidationError{Field: "topic", Message: "topic is required"}
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return &RuleValidationError{Field: "threshold", Message: "threshold must be a finite number"}
	}
	if !r.Direction.Valid() {
		return &RuleValidationError{Field: "direction", Message: "direction must be above or below"}
	}
	if r.Message == "" {
		return &RuleValidationError{Field: "message", Message: "message is required"}
	}
	if r.MaxDispatches < 1 {
		return &RuleValidationError{Field: "maxDispatches", Message: "max dispatches must be at least 1"}
	}
	if r.PeriodSeconds < 1 {
		return &RuleValidationError{Field: "periodSeconds", Message: "period must be at least 1 second"}
	}
	return nil
}

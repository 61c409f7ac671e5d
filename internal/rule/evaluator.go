package rule

import (
	"math"
	"strconv"
	"strings"
)

// ParsePayload parses a raw observation payload as a finite real number.
// Surrounding whitespace is tolerated; NaN and infinities are rejected.
func ParsePayload(payload []byte) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, strconv.ErrRange
	}
	return value, nil
}

// Evaluate returns the rules fired by an observed value, preserving the
// rule set's order. Topics are matched by exact equality; rules registered
// for other topics, including parents or children of the observed topic,
// never match. The function is pure.
func Evaluate(topic string, value float64, rules []Rule) []*Rule {
	var triggered []*Rule
	for i := range rules {
		r := &rules[i]
		if r.Topic != topic {
			continue
		}
		if r.Triggered(value) {
			triggered = append(triggered, r)
		}
	}
	return triggered
}

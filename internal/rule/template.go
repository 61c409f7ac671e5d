package rule

import (
	"strconv"
	"strings"
)

const (
	valuePlaceholder     = "{value}"
	thresholdPlaceholder = "{threshold}"
)

// FormatValue renders a float as decimal text. Integral values keep a
// trailing ".0" so that a threshold of 30 renders as "30.0", matching the
// representation operators see in the admin panel and in messages.
func FormatValue(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Render substitutes the {value} and {threshold} placeholders in the rule's
// message template. A template containing neither placeholder passes through
// unchanged.
func Render(r *Rule, value float64) string {
	msg := strings.ReplaceAll(r.Message, valuePlaceholder, FormatValue(value))
	msg = strings.ReplaceAll(msg, thresholdPlaceholder, FormatValue(r.Threshold))
	return msg
}

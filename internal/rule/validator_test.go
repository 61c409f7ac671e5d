package rule

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRule() Rule {
	return Rule{
		Topic:         "sensors/temp",
		Threshold:     30.0,
		Direction:     DirectionAbove,
		Message:       "Temperature {value} exceeds {threshold}",
		MaxDispatches: 1,
		PeriodSeconds: 3600,
		Enabled:       true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Rule)
		wantField string
	}{
		{
			name:   "valid rule",
			mutate: func(r *Rule) {},
		},
		{
			name:      "missing topic",
			mutate:    func(r *Rule) { r.Topic = "" },
			wantField: "topic",
		},
		{
			name:      "NaN threshold",
			mutate:    func(r *Rule) { r.Threshold = math.NaN() },
			wantField: "threshold",
		},
		{
			name:      "infinite threshold",
			mutate:    func(r *Rule) { r.Threshold = math.Inf(1) },
			wantField: "threshold",
		},
		{
			name:      "invalid direction",
			mutate:    func(r *Rule) { r.Direction = "near" },
			wantField: "direction",
		},
		{
			name:      "missing message",
			mutate:    func(r *Rule) { r.Message = "" },
			wantField: "message",
		},
		{
			name:      "zero max dispatches",
			mutate:    func(r *Rule) { r.MaxDispatches = 0 },
			wantField: "maxDispatches",
		},
		{
			name:      "negative max dispatches",
			mutate:    func(r *Rule) { r.MaxDispatches = -1 },
			wantField: "maxDispatches",
		},
		{
			name:      "zero period",
			mutate:    func(r *Rule) { r.PeriodSeconds = 0 },
			wantField: "periodSeconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)

			err := Validate(&r)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			var verr *RuleValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

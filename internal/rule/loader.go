package rule

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mqtt-alert-bridge/internal/logger"
)

// RulesLoader reads rule definitions from a YAML file, used to seed the
// store on first deployment.
type RulesLoader struct {
	logger *logger.Logger
}

// NewRulesLoader creates a new rules loader
func NewRulesLoader(log *logger.Logger) *RulesLoader {
	return &RulesLoader{
		logger: log,
	}
}

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Topic         string  `yaml:"topic"`
	Threshold     float64 `yaml:"threshold"`
	Direction     string  `yaml:"direction"`
	Message       string  `yaml:"message"`
	MaxDispatches int     `yaml:"maxDispatches"`
	PeriodSeconds int     `yaml:"periodSeconds"`
}

// LoadFromFile parses and validates all rule definitions in path
func (l *RulesLoader) LoadFromFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		direction, err := ParseDirection(spec.Direction)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		r := Rule{
			Topic:         spec.Topic,
			Threshold:     spec.Threshold,
			Direction:     direction,
			Message:       spec.Message,
			MaxDispatches: spec.MaxDispatches,
			PeriodSeconds: spec.PeriodSeconds,
			Enabled:       true,
		}
		if r.MaxDispatches == 0 {
			r.MaxDispatches = 1
		}
		if r.PeriodSeconds == 0 {
			r.PeriodSeconds = 3600
		}

		if err := Validate(&r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}

	l.logger.Info("rules loaded from file",
		"path", path,
		"count", len(rules))

	return rules, nil
}

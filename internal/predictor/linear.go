package predictor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"BreakoutSentinel/internal/model"
)

// Linear is a linear reward-multiple model loaded from YAML:
//
//	intercept: 2.1
//	weights:
//	  orb_range: 0.0004
//	  range_ratio: 0.05
type Linear struct {
	Intercept float64            `yaml:"intercept"`
	Weights   map[string]float64 `yaml:"weights"`
	Min       float64            `yaml:"min"`
	Max       float64            `yaml:"max"`
}

// LoadLinear reads and validates a linear model file.
func LoadLinear(path string) (*Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read linear model: %w", err)
	}
	m := &Linear{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	known := make(map[string]bool, len(model.FeatureNames))
	for _, n := range model.FeatureNames {
		known[n] = true
	}
	for name := range m.Weights {
		if !known[name] {
			return nil, fmt.Errorf("linear model: unknown feature %q", name)
		}
	}
	if m.Max != 0 && m.Max < m.Min {
		return nil, fmt.Errorf("linear model: max %.2f < min %.2f", m.Max, m.Min)
	}
	return m, nil
}

func (m *Linear) Predict(f model.FeatureVector) (float64, error) {
	y := m.Intercept
	for i, v := range f.Slice() {
		y += m.Weights[model.FeatureNames[i]] * v
	}
	if y < m.Min {
		y = m.Min
	}
	if m.Max != 0 && y > m.Max {
		y = m.Max
	}
	return y, nil
}

func (m *Linear) Name() string { return "linear" }

func (m *Linear) Close() error { return nil }

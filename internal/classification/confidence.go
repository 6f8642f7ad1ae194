package classification

import (
	"fmt"

	"github.com/killallgit/sensitive-data-api/pkg/config"
)

// ConfidenceConfig holds the tunable constants of the merge policy
type ConfidenceConfig struct {
	PatternBase             float64 `json:"pattern_base"`
	StatisticalBase         float64 `json:"statistical_base"`
	AgreementBoost          float64 `json:"agreement_boost"`
	HighConfidenceThreshold float64 `json:"high_confidence_threshold"`
	MinimumConfidence       float64 `json:"minimum_confidence"`
}

// DefaultConfidence returns the stock merge policy
func DefaultConfidence() ConfidenceConfig {
	return ConfidenceConfig{
		PatternBase:             0.95,
		StatisticalBase:         0.85,
		AgreementBoost:          0.05,
		HighConfidenceThreshold: 0.90,
		MinimumConfidence:       0.60,
	}
}

// ConfidenceFromConfig converts the configuration section as given. Unset
// keys already carry their defaults, so a zero is an explicit setting.
func ConfidenceFromConfig(c config.ConfidenceConfig) (ConfidenceConfig, error) {
	out := ConfidenceConfig{
		PatternBase:             c.PatternBase,
		StatisticalBase:         c.StatisticalBase,
		AgreementBoost:          c.AgreementBoost,
		HighConfidenceThreshold: c.HighConfidenceThreshold,
		MinimumConfidence:       c.MinimumConfidence,
	}
	if err := out.Validate(); err != nil {
		return ConfidenceConfig{}, fmt.Errorf("classification.confidence: %w", err)
	}
	return out, nil
}

// Validate checks every value lies in [0,1]
func (c ConfidenceConfig) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"pattern_base", c.PatternBase},
		{"statistical_base", c.StatisticalBase},
		{"agreement_boost", c.AgreementBoost},
		{"high_confidence_threshold", c.HighConfidenceThreshold},
		{"minimum_confidence", c.MinimumConfidence},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", f.name, f.value)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

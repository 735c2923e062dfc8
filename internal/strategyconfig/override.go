package strategyconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
)

// Override is an externally produced weight adjustment (e.g. an AI advisor)
// ⭐ 가중치 3개를 통째로 교체, 내부 조정 알고리즘 없음
type Override struct {
	Weights    Weights   `json:"weights" yaml:"weights"`
	Confidence float64   `json:"confidence" yaml:"confidence"` // 0.0 ~ 1.0
	Reason     string    `json:"reason" yaml:"reason"`
	Source     string    `json:"source" yaml:"source"`
	AppliedAt  time.Time `json:"applied_at" yaml:"-"`
}

// ApplyOverride returns a copy of base with the override weights applied
// The result is re-validated; base is never modified.
func ApplyOverride(base *Config, o Override) (*Config, error) {
	if base == nil {
		return nil, invalid("config", "required")
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return nil, invalid("override.confidence", "must be in [0, 1]")
	}
	if strings.TrimSpace(o.Reason) == "" {
		return nil, invalid("override.reason", "required")
	}

	cfg := base.Clone()
	cfg.Weights = o.Weights
	if err := Validate(cfg); err != nil {
		var prefixed error = err
		if ce, ok := err.(*contracts.ConfigurationError); ok {
			prefixed = &contracts.ConfigurationError{Field: "override." + ce.Field, Message: ce.Message}
		}
		return nil, fmt.Errorf("apply override from %q: %w", o.Source, prefixed)
	}

	return cfg, nil
}

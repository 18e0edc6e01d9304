package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StrategyInstance describes one configured strategy: identity, kind,
// enablement, and free-form options.
type StrategyInstance struct {
	StrategyID string
	Name       string
	Kind       StrategyKind
	Enabled    bool
	Config     map[string]any
}

// NewStrategyInstance validates and constructs an instance.
func NewStrategyInstance(strategyID, name string, kind StrategyKind, config map[string]any) (StrategyInstance, error) {
	if strategyID == "" {
		return StrategyInstance{}, fmt.Errorf("%w: empty strategy id", ErrInvalidConfig)
	}
	if name == "" {
		return StrategyInstance{}, fmt.Errorf("%w: empty strategy name", ErrInvalidConfig)
	}
	if config == nil {
		config = make(map[string]any)
	}
	return StrategyInstance{
		StrategyID: strategyID,
		Name:       name,
		Kind:       kind,
		Enabled:    true,
		Config:     config,
	}, nil
}

// ConfigInt reads an integer option, tolerating YAML's int/float decoding.
func (si StrategyInstance) ConfigInt(key string, def int) int {
	switch v := si.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// ConfigDecimal reads a numeric option as a decimal.
func (si StrategyInstance) ConfigDecimal(key string, def decimal.Decimal) decimal.Decimal {
	switch v := si.Config[key].(type) {
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
		return def
	default:
		return def
	}
}

// ConfigString reads a string option.
func (si StrategyInstance) ConfigString(key, def string) string {
	if v, ok := si.Config[key].(string); ok {
		return v
	}
	return def
}

// ConfigStringSlice reads a string-list option, tolerating YAML's []any
// decoding. Non-string elements are skipped.
func (si StrategyInstance) ConfigStringSlice(key string) []string {
	switch v := si.Config[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

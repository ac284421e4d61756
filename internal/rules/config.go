package rules

import (
	"github.com/raaihank/flowpaste/internal/config"
	"go.uber.org/zap"
)

// FromConfig builds an executor over the built-in rules plus the user
// rules of cfg, with the configured limits
func FromConfig(cfg config.RulesConfig, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	custom := make([]Rule, 0, len(cfg.Custom))
	for _, rc := range cfg.Custom {
		custom = append(custom, Rule{
			ID:          rc.ID,
			Name:        rc.Name,
			Description: rc.Description,
			Pattern:     rc.Pattern,
			Replacement: rc.Replacement,
		})
	}

	base := []Option{
		WithLogger(logger),
		WithLimits(Limits{Timeout: cfg.Timeout, MaxOutputBytes: cfg.MaxOutputBytes}),
	}
	if len(custom) > 0 {
		base = append(base, WithUserRules(NewRegistry(custom, logger)))
	}
	return NewExecutor(DefaultRegistry(logger), append(base, opts...)...)
}

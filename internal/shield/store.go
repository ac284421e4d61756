package shield

import (
	"fmt"

	"github.com/raaihank/flowpaste/internal/config"
	"go.uber.org/zap"
)

// NewStore returns the session store selected by cfg.Store
func NewStore(cfg config.ShieldConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown shield store: %s", cfg.Store)
	}
}

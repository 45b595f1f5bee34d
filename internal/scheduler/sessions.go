package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cloudx/internal/session"
)

// SessionSweeper returns a job that evicts sessions idle for at least ttl
// and reports the remaining count through gauge, if set.
func SessionSweeper(reg *session.Registry, ttl time.Duration, logger *zap.Logger, gauge func(n int)) func(context.Context) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		n := reg.Sweep(ttl)
		if n > 0 {
			logger.Info("evicted idle sessions", zap.Int("evicted", n), zap.Int("remaining", reg.Len()))
		}
		if gauge != nil {
			gauge(reg.Len())
		}
		return nil
	}
}

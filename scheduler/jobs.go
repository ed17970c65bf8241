package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/kasuganosora/baycode/config"
)

// Task names.
const (
	AutoSave        = "auto_save"
	ResetTokenSweep = "reset_token_sweep"
)

// Community is the part of the session manager the background jobs drive.
type Community interface {
	Save(ctx context.Context) error
	SweepResetTokens(ctx context.Context) int
	PruneSessions() int
}

// AddCommunityJobs registers the periodic snapshot save and the sweep of
// expired reset tokens and sessions.
func AddCommunityJobs(s *Scheduler, cfg config.SchedulerConfig, c Community, logger *zap.Logger) {
	s.AddTicker(AutoSave, cfg.AutoSaveInterval, c.Save)
	s.AddTicker(ResetTokenSweep, cfg.ResetSweepInterval, func(ctx context.Context) error {
		tokens := c.SweepResetTokens(ctx)
		sessions := c.PruneSessions()
		if tokens > 0 || sessions > 0 {
			logger.Info("expired credentials swept",
				zap.Int("reset_tokens", tokens),
				zap.Int("sessions", sessions))
		}
		return nil
	})
}

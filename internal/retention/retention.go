// Package retention runs the periodic cleanup of expired idempotency
// records on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/repo"
)

// DefaultCron runs the purge at the top of every hour.
const DefaultCron = "@hourly"

// Job purges expired rows each time the schedule fires.
type Job struct {
	DB   *gorm.DB
	Cron string
	Log  zerolog.Logger
	Now  func() time.Time
}

// RunOnce deletes every idempotency record expired at now.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	now := j.now()
	n, err := repo.PurgeExpiredIdempotency(ctx, j.DB, now)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency: %w", err)
	}
	j.Log.Info().Int64("purged", n).Time("before", now).Msg("retention run")
	return n, nil
}

// Start validates the schedule and runs the loop in a goroutine until ctx
// is cancelled.
func (j *Job) Start(ctx context.Context) error {
	expr := j.Cron
	if expr == "" {
		expr = DefaultCron
	}
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid retention cron expression: %q", expr)
	}
	j.Log.Info().Str("cron", expr).Msg("retention scheduler started")
	go j.loop(ctx, expr)
	return nil
}

func (j *Job) loop(ctx context.Context, expr string) {
	for {
		next, err := gronx.NextTickAfter(expr, j.now(), false)
		wait := time.Until(next)
		if err != nil {
			j.Log.Error().Err(err).Str("cron", expr).Msg("retention next tick")
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.Log.Info().Msg("retention scheduler stopping")
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}
		if _, err := j.RunOnce(ctx); err != nil {
			j.Log.Error().Err(err).Msg("retention run")
		}
	}
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

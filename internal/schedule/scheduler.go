package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/throttle"
)

// EarlyFireSlack is how far ahead of scheduled_at a campaign may fire. It
// absorbs tick granularity and modest clock skew; beyond it a scheduled
// campaign must not start.
const EarlyFireSlack = 2 * time.Second

// NextOccurrence computes the fire time after prev for a recurring
// schedule. Anchoring to the previous fire time (never to "now") keeps the
// series drift-free. The second return is false once the series is done.
func NextOccurrence(rec *model.Recurrence, prev time.Time) (time.Time, bool) {
	interval := rec.Interval
	if interval < 1 {
		interval = 1
	}
	var next time.Time
	switch rec.Frequency {
	case model.FrequencyDaily:
		next = prev.AddDate(0, 0, interval)
	case model.FrequencyWeekly:
		next = prev.AddDate(0, 0, 7*interval)
	case model.FrequencyMonthly:
		next = prev.AddDate(0, interval, 0)
	default:
		return time.Time{}, false
	}
	if rec.EndDate != nil && next.After(*rec.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// SliceWave cuts the eligible recipient set down to what the current
// rolling window still allows. Leftovers defer to the next window, they are
// never dropped.
func SliceWave(userIDs []string, limiter *throttle.Limiter) (wave, deferred []string) {
	budget := limiter.Remaining()
	if budget >= len(userIDs) {
		return userIDs, nil
	}
	return userIDs[:budget], userIDs[budget:]
}

// CampaignStore is the slice of persistence the tick loop needs.
type CampaignStore interface {
	ListDue(until time.Time) ([]*model.Campaign, error)
}

// StartFunc launches one campaign run (resolve, snapshot, publish waves).
type StartFunc func(ctx context.Context, c *model.Campaign) error

// Scheduler owns the only periodic operation in the engine: the tick that
// promotes due campaigns into sending. The loop is cancellable through its
// context; stopping it never corrupts a partially sent wave, because wave
// state lives on the recipient rows.
type Scheduler struct {
	store    CampaignStore
	start    StartFunc
	interval time.Duration
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewScheduler(store CampaignStore, start StartFunc, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{store: store, start: start, interval: interval, log: log, now: time.Now}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts every campaign whose scheduled time has arrived (within
// EarlyFireSlack).
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.store.ListDue(s.now().Add(EarlyFireSlack))
	if err != nil {
		if s.log != nil {
			s.log.Warnw("⚠️ scheduler tick failed to list due campaigns", "err", err)
		}
		return
	}
	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return
		}
		if c.Status != model.CampaignScheduled {
			continue
		}
		if err := s.start(ctx, c); err != nil && s.log != nil {
			s.log.Warnw("⚠️ failed to start due campaign", "campaign_id", c.ID, "err", err)
		}
	}
}

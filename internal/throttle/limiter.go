package throttle

import (
	"sync"
	"time"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// Unlimited is returned by Remaining when no ceiling applies.
const Unlimited = int(^uint(0) >> 1)

// Limiter is a rolling-window send limiter shared by every dispatch worker
// of a campaign. It is the single point of truth for "sends this window":
// workers reserve through TryAcquire under one lock, so their combined rate
// can never exceed the ceiling.
type Limiter struct {
	mu      sync.Mutex
	perHour int // 0 means no hourly ceiling
	perDay  int // 0 means no daily ceiling
	sends   []time.Time

	// Now is swappable for tests.
	Now func() time.Time
}

// NewLimiter builds a limiter from a campaign's throttling config. A nil or
// disabled config yields an unlimited limiter.
func NewLimiter(t *model.Throttling) *Limiter {
	l := &Limiter{Now: time.Now}
	if t != nil && t.Enabled {
		l.perHour = t.MessagesPerHour
		l.perDay = t.MessagesPerDay
	}
	return l
}

func (l *Limiter) limited() bool {
	return l.perHour > 0 || l.perDay > 0
}

// prune drops send records older than the widest window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	horizon := now.Add(-24 * time.Hour)
	i := 0
	for i < len(l.sends) && !l.sends[i].After(horizon) {
		i++
	}
	if i > 0 {
		l.sends = append(l.sends[:0], l.sends[i:]...)
	}
}

func (l *Limiter) counts(now time.Time) (hour, day int) {
	day = len(l.sends)
	hourEdge := now.Add(-time.Hour)
	for _, ts := range l.sends {
		if ts.After(hourEdge) {
			hour++
		}
	}
	return hour, day
}

// Remaining reports how many sends the current rolling windows still allow.
// The scheduler uses it to slice the eligible set into waves.
func (l *Limiter) Remaining() int {
	if !l.limited() {
		return Unlimited
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	l.prune(now)
	hour, day := l.counts(now)

	remaining := Unlimited
	if l.perHour > 0 && l.perHour-hour < remaining {
		remaining = l.perHour - hour
	}
	if l.perDay > 0 && l.perDay-day < remaining {
		remaining = l.perDay - day
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// TryAcquire reserves one send against the windows. False means the budget
// is exhausted and the recipient defers to the next window; deferral is not
// an error.
func (l *Limiter) TryAcquire() bool {
	if !l.limited() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	l.prune(now)
	hour, day := l.counts(now)

	if l.perHour > 0 && hour >= l.perHour {
		return false
	}
	if l.perDay > 0 && day >= l.perDay {
		return false
	}
	l.sends = append(l.sends, now)
	return true
}

// NextWindow reports when capacity next frees up, for scheduling the
// deferred wave. Zero time means capacity is available now.
func (l *Limiter) NextWindow() time.Time {
	if !l.limited() {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	l.prune(now)
	hour, day := l.counts(now)

	var next time.Time
	if l.perHour > 0 && hour >= l.perHour {
		idx := len(l.sends) - hour // oldest send still inside the hour window
		next = l.sends[idx].Add(time.Hour)
	}
	if l.perDay > 0 && day >= l.perDay {
		candidate := l.sends[0].Add(24 * time.Hour)
		if candidate.After(next) {
			next = candidate
		}
	}
	return next
}

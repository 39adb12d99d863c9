package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/schedule"
	"github.com/unclebandit/campaign-engine/internal/throttle"
)

func TestCampaignStateMachine(t *testing.T) {
	cases := []struct {
		from, to model.CampaignStatus
		ok       bool
	}{
		{model.CampaignDraft, model.CampaignScheduled, true},
		{model.CampaignDraft, model.CampaignSending, true}, // immediate start
		{model.CampaignScheduled, model.CampaignSending, true},
		{model.CampaignSending, model.CampaignSent, true},
		{model.CampaignSending, model.CampaignScheduled, true}, // recurring re-arm
		{model.CampaignSending, model.CampaignFailed, true},
		{model.CampaignScheduled, model.CampaignPaused, true},
		{model.CampaignSending, model.CampaignPaused, true},
		{model.CampaignDraft, model.CampaignCancelled, true},
		{model.CampaignScheduled, model.CampaignCancelled, true},
		{model.CampaignSending, model.CampaignCancelled, true},
		{model.CampaignPaused, model.CampaignCancelled, true},

		{model.CampaignSent, model.CampaignSending, false},
		{model.CampaignSent, model.CampaignCancelled, false},
		{model.CampaignCancelled, model.CampaignScheduled, false},
		{model.CampaignFailed, model.CampaignSending, false},
		{model.CampaignDraft, model.CampaignSent, false},
		{model.CampaignDraft, model.CampaignPaused, false},
		{model.CampaignScheduled, model.CampaignFailed, false},
	}
	for _, tc := range cases {
		got := schedule.CanTransition(tc.from, tc.to)
		if got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestPauseResumeRestoresPriorState(t *testing.T) {
	c := &model.Campaign{Status: model.CampaignSending}

	assert.NoError(t, schedule.Apply(c, model.CampaignPaused))
	assert.Equal(t, model.CampaignPaused, c.Status)

	assert.NoError(t, schedule.Resume(c))
	assert.Equal(t, model.CampaignSending, c.Status, "resume re-enters the pre-pause state")
	assert.Nil(t, c.PausedFrom)

	c2 := &model.Campaign{Status: model.CampaignScheduled}
	assert.NoError(t, schedule.Apply(c2, model.CampaignPaused))
	assert.NoError(t, schedule.Resume(c2))
	assert.Equal(t, model.CampaignScheduled, c2.Status)

	assert.Error(t, schedule.Resume(c2), "resume only applies to paused campaigns")
}

func TestNextOccurrenceBiweekly(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 60)
	rec := &model.Recurrence{Frequency: model.FrequencyWeekly, Interval: 2, EndDate: &end}

	var fires []time.Time
	prev := start
	for {
		next, ok := schedule.NextOccurrence(rec, prev)
		if !ok {
			break
		}
		fires = append(fires, next)
		prev = next
	}

	assert.Equal(t, 4, len(fires))
	for i, fire := range fires {
		expected := start.AddDate(0, 0, 14*(i+1))
		assert.Equal(t, expected, fire, "strictly increasing by 14 days, anchored to the original time")
		assert.False(t, fire.After(end))
	}
}

func TestNextOccurrenceFrequencies(t *testing.T) {
	prev := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)

	next, ok := schedule.NextOccurrence(&model.Recurrence{Frequency: model.FrequencyDaily, Interval: 3}, prev)
	assert.True(t, ok)
	assert.Equal(t, prev.AddDate(0, 0, 3), next)

	next, ok = schedule.NextOccurrence(&model.Recurrence{Frequency: model.FrequencyMonthly, Interval: 1}, prev)
	assert.True(t, ok)
	assert.Equal(t, prev.AddDate(0, 1, 0), next)

	_, ok = schedule.NextOccurrence(&model.Recurrence{Frequency: "hourly", Interval: 1}, prev)
	assert.False(t, ok, "unknown frequency ends the series")
}

func TestNextOccurrencePastEndDate(t *testing.T) {
	prev := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := prev.AddDate(0, 0, 10)
	rec := &model.Recurrence{Frequency: model.FrequencyWeekly, Interval: 2, EndDate: &end}

	_, ok := schedule.NextOccurrence(rec, prev)
	assert.False(t, ok)
}

func TestSliceWave(t *testing.T) {
	users := []string{"u1", "u2", "u3", "u4", "u5"}

	clock := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	limiter := throttle.NewLimiter(&model.Throttling{Enabled: true, MessagesPerHour: 2})
	limiter.Now = func() time.Time { return clock }

	// wave 1: 2 recipients, 3 deferred
	wave, rest := schedule.SliceWave(users, limiter)
	assert.Equal(t, []string{"u1", "u2"}, wave)
	assert.Equal(t, []string{"u3", "u4", "u5"}, rest)
	limiter.TryAcquire()
	limiter.TryAcquire()

	// same window: nothing fits
	wave, rest = schedule.SliceWave(rest, limiter)
	assert.Empty(t, wave)
	assert.Equal(t, 3, len(rest))

	// next window: wave 2 of 2, then wave 3 of 1
	clock = clock.Add(61 * time.Minute)
	wave, rest = schedule.SliceWave(rest, limiter)
	assert.Equal(t, []string{"u3", "u4"}, wave)
	limiter.TryAcquire()
	limiter.TryAcquire()

	clock = clock.Add(61 * time.Minute)
	wave, rest = schedule.SliceWave(rest, limiter)
	assert.Equal(t, []string{"u5"}, wave)
	assert.Empty(t, rest)
}

func TestSliceWaveUnthrottled(t *testing.T) {
	users := []string{"u1", "u2"}
	wave, rest := schedule.SliceWave(users, throttle.NewLimiter(nil))
	assert.Equal(t, users, wave)
	assert.Nil(t, rest)
}

// MockStore feeds the tick loop
type MockStore struct {
	mu  sync.Mutex
	due []*model.Campaign
}

func (m *MockStore) ListDue(until time.Time) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.due {
		if c.Schedule.ScheduledAt != nil && !c.Schedule.ScheduledAt.After(until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestTickFiresOnlyDueCampaigns(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	soon := now.Add(time.Second)       // inside the slack
	later := now.Add(10 * time.Minute) // not due yet

	dueCampaign := &model.Campaign{ID: "c1", Status: model.CampaignScheduled,
		Schedule: model.CampaignSchedule{Type: model.ScheduleScheduled, ScheduledAt: &soon}}
	futureCampaign := &model.Campaign{ID: "c2", Status: model.CampaignScheduled,
		Schedule: model.CampaignSchedule{Type: model.ScheduleScheduled, ScheduledAt: &later}}
	pausedCampaign := &model.Campaign{ID: "c3", Status: model.CampaignPaused,
		Schedule: model.CampaignSchedule{Type: model.ScheduleScheduled, ScheduledAt: &soon}}

	store := &MockStore{due: []*model.Campaign{dueCampaign, futureCampaign, pausedCampaign}}

	var started []string
	s := schedule.NewScheduler(store, func(ctx context.Context, c *model.Campaign) error {
		started = append(started, c.ID)
		return nil
	}, time.Second, nil)
	schedule.SetNow(s, func() time.Time { return now })

	s.Tick(context.Background())
	assert.Equal(t, []string{"c1"}, started, "future and paused campaigns must not fire")
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &MockStore{}
	s := schedule.NewScheduler(store, func(ctx context.Context, c *model.Campaign) error { return nil }, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

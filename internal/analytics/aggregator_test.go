package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/campaign-engine/internal/analytics"
	"github.com/unclebandit/campaign-engine/internal/model"
)

// applyPath walks one recipient through a transition sequence both ways:
// mutating the row and feeding the tally.
func applyPath(t *testing.T, row *model.CampaignRecipient, tally *analytics.Tally, path []model.RecipientStatus) {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, next := range path {
		from := row.Status
		if !row.Advance(next, now) {
			t.Fatalf("illegal transition %s -> %s", from, next)
		}
		tally.Apply(from, next)
		now = now.Add(time.Minute)
	}
}

func TestFullEqualsIncremental(t *testing.T) {
	paths := [][]model.RecipientStatus{
		{model.RecipientSent, model.RecipientDelivered, model.RecipientOpened, model.RecipientClicked, model.RecipientConverted},
		{model.RecipientSent, model.RecipientDelivered, model.RecipientOpened},
		{model.RecipientSent, model.RecipientFailed},
		{model.RecipientFailed},
		{model.RecipientSent, model.RecipientClicked}, // skips delivered+opened
		{model.RecipientSent, model.RecipientDelivered, model.RecipientUnsubscribed},
		{model.RecipientSent, model.RecipientBounced},
		{model.RecipientSent, model.RecipientDelivered, model.RecipientSpam},
		{}, // still pending
	}

	tally := analytics.NewTally()
	rows := make([]model.CampaignRecipient, len(paths))
	for i, path := range paths {
		rows[i] = model.CampaignRecipient{
			ID:         "r",
			CampaignID: "c1",
			Status:     model.RecipientPending,
		}
		tally.AddRecipient()
		applyPath(t, &rows[i], tally, path)
	}

	full := analytics.Aggregate(rows)
	incremental := tally.Metrics()
	assert.Equal(t, full, incremental, "recompute and incremental must converge")

	// spot-check the fold itself
	assert.Equal(t, 9, full.TotalRecipients)
	assert.Equal(t, 7, full.Sent, "the pending row and the never-sent failure do not count")
	assert.Equal(t, 2, full.Failed)
	assert.Equal(t, 1, full.Unsubscribed)
	assert.Equal(t, 1, full.Bounced)
	assert.Equal(t, 1, full.Spam)
	// delivered: three explicit, one via the skip path, one spam path
	assert.Equal(t, 5, full.Delivered)
	assert.Equal(t, 3, full.Opened)
	assert.Equal(t, 2, full.Clicked)
	assert.Equal(t, 1, full.Converted)
}

func TestRatesZeroOnZeroDenominator(t *testing.T) {
	m := analytics.Aggregate(nil)
	assert.Equal(t, 0.0, m.OpenRate)
	assert.Equal(t, 0.0, m.ClickRate)
	assert.Equal(t, 0.0, m.ConversionRate)

	// failed-only campaign: still all zero rates
	rows := []model.CampaignRecipient{{Status: model.RecipientFailed}}
	m = analytics.Aggregate(rows)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, 0.0, m.OpenRate)
}

func TestRates(t *testing.T) {
	now := time.Now()
	rows := []model.CampaignRecipient{
		{Status: model.RecipientConverted, SentAt: &now, DeliveredAt: &now, OpenedAt: &now, ClickedAt: &now, ConvertedAt: &now},
		{Status: model.RecipientOpened, SentAt: &now, DeliveredAt: &now, OpenedAt: &now},
		{Status: model.RecipientDelivered, SentAt: &now, DeliveredAt: &now},
		{Status: model.RecipientDelivered, SentAt: &now, DeliveredAt: &now},
	}
	m := analytics.Aggregate(rows)
	assert.InDelta(t, 0.5, m.OpenRate, 1e-9)       // 2 opened / 4 delivered
	assert.InDelta(t, 0.5, m.ClickRate, 1e-9)      // 1 clicked / 2 opened
	assert.InDelta(t, 1.0, m.ConversionRate, 1e-9) // 1 converted / 1 clicked
}

func TestMonotonicGuard(t *testing.T) {
	now := time.Now()
	r := model.CampaignRecipient{Status: model.RecipientDelivered}

	assert.False(t, r.Advance(model.RecipientSent, now), "no regressions")
	assert.False(t, r.Advance(model.RecipientPending, now))
	assert.False(t, r.Advance(model.RecipientDelivered, now), "no self transition")

	assert.True(t, r.Advance(model.RecipientConverted, now))
	assert.False(t, r.Advance(model.RecipientOpened, now), "terminal states are final")
}

package analytics

import "github.com/unclebandit/campaign-engine/internal/model"

// Aggregate folds a campaign's recipient rows into CampaignMetrics.
// Pure: call it as often as you like over the same snapshot and the result
// is identical. Pass-through states count via their recorded timestamps, so
// a pending->failed recipient never counts as sent.
func Aggregate(rows []model.CampaignRecipient) model.CampaignMetrics {
	m := model.CampaignMetrics{TotalRecipients: len(rows)}
	for i := range rows {
		r := &rows[i]
		if r.SentAt != nil {
			m.Sent++
		}
		if r.DeliveredAt != nil {
			m.Delivered++
		}
		if r.OpenedAt != nil {
			m.Opened++
		}
		if r.ClickedAt != nil {
			m.Clicked++
		}
		if r.ConvertedAt != nil {
			m.Converted++
		}
		switch r.Status {
		case model.RecipientFailed:
			m.Failed++
		case model.RecipientUnsubscribed:
			m.Unsubscribed++
		case model.RecipientBounced:
			m.Bounced++
		case model.RecipientSpam:
			m.Spam++
		}
	}
	fillRates(&m)
	return m
}

func fillRates(m *model.CampaignMetrics) {
	if m.Delivered > 0 {
		m.OpenRate = float64(m.Opened) / float64(m.Delivered)
	}
	if m.Opened > 0 {
		m.ClickRate = float64(m.Clicked) / float64(m.Opened)
	}
	if m.Clicked > 0 {
		m.ConversionRate = float64(m.Converted) / float64(m.Clicked)
	}
}

// Tally maintains the same metrics incrementally, one state transition at a
// time. For any valid monotonic transition sequence it converges to exactly
// what Aggregate computes over the final snapshot.
type Tally struct {
	m model.CampaignMetrics
}

func NewTally() *Tally {
	return &Tally{}
}

// AddRecipient accounts for a freshly snapshotted pending row.
func (t *Tally) AddRecipient() {
	t.m.TotalRecipients++
}

// Apply records one from->to transition. Skipped intermediate milestones
// count as passed through, mirroring CampaignRecipient.Advance.
func (t *Tally) Apply(from, to model.RecipientStatus) {
	switch to {
	case model.RecipientFailed:
		t.m.Failed++
		return
	case model.RecipientUnsubscribed:
		t.m.Unsubscribed++
		return
	case model.RecipientBounced:
		t.m.Bounced++
		return
	case model.RecipientSpam:
		t.m.Spam++
		return
	}

	fromRank := model.StatusRank(from)
	toRank := model.StatusRank(to)
	milestones := []struct {
		status model.RecipientStatus
		count  *int
	}{
		{model.RecipientSent, &t.m.Sent},
		{model.RecipientDelivered, &t.m.Delivered},
		{model.RecipientOpened, &t.m.Opened},
		{model.RecipientClicked, &t.m.Clicked},
		{model.RecipientConverted, &t.m.Converted},
	}
	for _, ms := range milestones {
		r := model.StatusRank(ms.status)
		if r > fromRank && r <= toRank {
			*ms.count++
		}
	}
}

// Metrics returns the current counts with rates computed.
func (t *Tally) Metrics() model.CampaignMetrics {
	m := t.m
	fillRates(&m)
	return m
}

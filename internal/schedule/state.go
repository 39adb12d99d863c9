package schedule

import (
	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

// CanTransition encodes the campaign status machine:
// draft -> scheduled -> sending -> sent, pause/resume from scheduled or
// sending, cancel from any non-terminal state, failed only out of sending.
func CanTransition(from, to model.CampaignStatus) bool {
	if from == to {
		return false
	}
	switch to {
	case model.CampaignCancelled:
		return from != model.CampaignSent && from != model.CampaignCancelled && from != model.CampaignFailed
	case model.CampaignScheduled:
		// sending -> scheduled closes one occurrence of a recurring
		// campaign and arms the next
		return from == model.CampaignDraft || from == model.CampaignPaused || from == model.CampaignSending
	case model.CampaignSending:
		return from == model.CampaignDraft || from == model.CampaignScheduled || from == model.CampaignPaused
	case model.CampaignSent:
		return from == model.CampaignSending
	case model.CampaignPaused:
		return from == model.CampaignScheduled || from == model.CampaignSending
	case model.CampaignFailed:
		return from == model.CampaignSending
	}
	return false
}

// Apply moves the campaign to the new status, keeping the pause bookkeeping
// straight: pausing remembers the pre-pause status so resume can restore it.
func Apply(c *model.Campaign, to model.CampaignStatus) error {
	if !CanTransition(c.Status, to) {
		return &appErrors.ErrInvalidTransition{From: string(c.Status), To: string(to)}
	}
	if to == model.CampaignPaused {
		from := c.Status
		c.PausedFrom = &from
	} else {
		c.PausedFrom = nil
	}
	c.Status = to
	return nil
}

// Resume re-enters the status the campaign held before it was paused.
func Resume(c *model.Campaign) error {
	if c.Status != model.CampaignPaused {
		return &appErrors.ErrInvalidTransition{From: string(c.Status), To: "resume"}
	}
	to := model.CampaignScheduled
	if c.PausedFrom != nil {
		to = *c.PausedFrom
	}
	return Apply(c, to)
}

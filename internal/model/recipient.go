package model

import "time"

// RecipientStatus tracks how far one recipient got through delivery.
type RecipientStatus string

const (
	RecipientPending      RecipientStatus = "pending"
	RecipientSent         RecipientStatus = "sent"
	RecipientDelivered    RecipientStatus = "delivered"
	RecipientFailed       RecipientStatus = "failed"
	RecipientOpened       RecipientStatus = "opened"
	RecipientClicked      RecipientStatus = "clicked"
	RecipientConverted    RecipientStatus = "converted"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
	RecipientBounced      RecipientStatus = "bounced"
	RecipientSpam         RecipientStatus = "spam"
)

// statusRank orders the main progression. failed sits beside delivered:
// both are outcomes of a send attempt.
var statusRank = map[RecipientStatus]int{
	RecipientPending:   0,
	RecipientSent:      1,
	RecipientDelivered: 2,
	RecipientFailed:    2,
	RecipientOpened:    3,
	RecipientClicked:   4,
	RecipientConverted: 5,
}

// StatusRank returns the position of s along the delivery progression.
// Terminal variants (unsubscribed, bounced, spam) rank with delivered.
func StatusRank(s RecipientStatus) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return statusRank[RecipientDelivered]
}

func IsTerminalRecipientStatus(s RecipientStatus) bool {
	switch s {
	case RecipientFailed, RecipientConverted, RecipientUnsubscribed, RecipientBounced, RecipientSpam:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal, monotonic step.
// Transitions are append-only: nothing ever moves back down the ladder.
func CanTransition(from, to RecipientStatus) bool {
	if from == to || IsTerminalRecipientStatus(from) {
		return false
	}
	switch to {
	case RecipientFailed:
		return from == RecipientPending || from == RecipientSent
	case RecipientUnsubscribed, RecipientBounced, RecipientSpam:
		return from == RecipientSent || from == RecipientDelivered
	default:
		return StatusRank(to) > StatusRank(from)
	}
}

// CampaignRecipient is one row per (campaign, recipient). Created when the
// dispatch set is snapshotted, mutated only by the dispatcher, never deleted.
type CampaignRecipient struct {
	ID            string                      `db:"id" json:"id"`
	CampaignID    string                      `db:"campaign_id" json:"campaign_id"`
	UserID        string                      `db:"user_id" json:"user_id"`
	Channels      []Channel                   `db:"channels" json:"channels"`
	Status        RecipientStatus             `db:"status" json:"status"`
	ChannelStates map[Channel]RecipientStatus `db:"channel_states" json:"channel_states,omitempty"`
	SentAt        *time.Time                  `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt   *time.Time                  `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt      *time.Time                  `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt     *time.Time                  `db:"clicked_at" json:"clicked_at,omitempty"`
	ConvertedAt   *time.Time                  `db:"converted_at" json:"converted_at,omitempty"`
	FailureReason string                      `db:"failure_reason" json:"failure_reason,omitempty"`
	RetryCount    int                         `db:"retry_count" json:"retry_count"`
	// MissingVars lists template placeholders that rendered empty, for
	// operator visibility.
	MissingVars []string  `db:"missing_vars" json:"missing_vars,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Advance applies a legal transition and stamps timestamps. A step that
// skips intermediate states (e.g. sent -> clicked) stamps the skipped ones
// too: the recipient passed through them. Returns false on an illegal step.
func (r *CampaignRecipient) Advance(to RecipientStatus, now time.Time) bool {
	if !CanTransition(r.Status, to) {
		return false
	}
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case RecipientFailed, RecipientUnsubscribed, RecipientBounced, RecipientSpam:
		// terminal variants stamp nothing further: a bounce is not a delivery
		return true
	}
	rank := StatusRank(to)
	if rank >= statusRank[RecipientSent] && r.SentAt == nil {
		r.SentAt = &now
	}
	if rank >= statusRank[RecipientDelivered] && r.DeliveredAt == nil {
		r.DeliveredAt = &now
	}
	if rank >= statusRank[RecipientOpened] && r.OpenedAt == nil {
		r.OpenedAt = &now
	}
	if rank >= statusRank[RecipientClicked] && r.ClickedAt == nil {
		r.ClickedAt = &now
	}
	if rank >= statusRank[RecipientConverted] && r.ConvertedAt == nil {
		r.ConvertedAt = &now
	}
	return true
}

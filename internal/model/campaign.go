package model

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Recurrence describes how a recurring campaign repeats.
type Recurrence struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Throttling caps the send rate handed to the dispatcher.
type Throttling struct {
	Enabled         bool `json:"enabled"`
	MessagesPerHour int  `json:"messages_per_hour,omitempty"`
	MessagesPerDay  int  `json:"messages_per_day,omitempty"`
}

// CampaignSchedule is stored as jsonb on the campaigns row.
type CampaignSchedule struct {
	Type        ScheduleType `json:"type"`
	ScheduledAt *time.Time   `json:"scheduled_at,omitempty"`
	Recurrence  *Recurrence  `json:"recurrence,omitempty"`
	Throttling  *Throttling  `json:"throttling,omitempty"`
}

type Campaign struct {
	ID            string           `db:"id" json:"id"`
	Name          string           `db:"name" json:"name"`
	Status        CampaignStatus   `db:"status" json:"status"`
	Channels      []Channel        `db:"channels" json:"channels"`
	AudienceID    string           `db:"audience_id" json:"audience_id"`
	TemplateID    *string          `db:"template_id" json:"template_id,omitempty"`
	CustomContent *string          `db:"custom_content" json:"custom_content,omitempty"`
	Category      string           `db:"category" json:"category"`
	Schedule      CampaignSchedule `db:"schedule" json:"schedule"`
	// PausedFrom remembers the pre-pause status so resume can restore it.
	PausedFrom  *CampaignStatus `db:"paused_from" json:"paused_from,omitempty"`
	LastFiredAt *time.Time      `db:"last_fired_at" json:"last_fired_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled || c.Status == CampaignFailed
}

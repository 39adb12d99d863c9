package model

// ChannelPreference is the per-channel toggle on a preference record.
type ChannelPreference struct {
	Enabled    bool            `json:"enabled"`
	Categories map[string]bool `json:"categories,omitempty"`
}

// DoNotDisturb is a recipient-local quiet window. Start/End are "HH:MM" in
// the recipient's timezone; End before Start wraps past midnight.
type DoNotDisturb struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
	// Days restricts DND to these weekdays (0=Sunday). Empty means every day.
	Days []int `json:"days,omitempty"`
}

// NotificationPreference is owned by the recipient and read-only to the
// campaign engine.
type NotificationPreference struct {
	UserID           string                        `db:"user_id" json:"user_id"`
	Channels         map[Channel]ChannelPreference `db:"channels" json:"channels"`
	DoNotDisturb     *DoNotDisturb                 `db:"do_not_disturb" json:"do_not_disturb,omitempty"`
	Timezone         string                        `db:"timezone" json:"timezone,omitempty"`
	UnsubscribedFrom []string                      `db:"unsubscribed_from" json:"unsubscribed_from,omitempty"`
}

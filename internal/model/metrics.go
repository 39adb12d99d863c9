package model

// CampaignMetrics is derived, never hand-edited: a fold over the campaign's
// recipient rows.
type CampaignMetrics struct {
	TotalRecipients int `json:"total_recipients"`
	Sent            int `json:"sent"`
	Delivered       int `json:"delivered"`
	Failed          int `json:"failed"`
	Opened          int `json:"opened"`
	Clicked         int `json:"clicked"`
	Converted       int `json:"converted"`
	Unsubscribed    int `json:"unsubscribed"`
	Bounced         int `json:"bounced"`
	Spam            int `json:"spam"`

	OpenRate       float64 `json:"open_rate"`
	ClickRate      float64 `json:"click_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}

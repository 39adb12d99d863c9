package model

// MessageTemplate is immutable per version; Variables is the set of
// placeholder names the body may reference.
type MessageTemplate struct {
	ID        string   `db:"id" json:"id"`
	Channel   Channel  `db:"channel" json:"channel"`
	Subject   string   `db:"subject" json:"subject,omitempty"`
	Body      string   `db:"body" json:"body"`
	HTML      string   `db:"html" json:"html,omitempty"`
	Variables []string `db:"variables" json:"variables"`
}

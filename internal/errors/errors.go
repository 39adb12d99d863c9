package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrResolutionUnavailable means the recipient pool could not be read.
// Resolution is all-or-nothing, so no partial result accompanies it.
type ErrResolutionUnavailable struct {
	Cause error
}

func (e *ErrResolutionUnavailable) Error() string {
	return fmt.Sprintf("recipient pool unavailable: %v", e.Cause)
}

func (e *ErrResolutionUnavailable) Unwrap() error { return e.Cause }

func NewResolutionUnavailable(cause error) error {
	return &ErrResolutionUnavailable{Cause: cause}
}

// ErrSendFailed is recorded per recipient per channel, never campaign-fatal.
type ErrSendFailed struct {
	Channel string
	UserID  string
	Reason  string
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("send to user %s on %s failed: %s", e.UserID, e.Channel, e.Reason)
}

// ErrMalformedFilter marks a rule with a bad shape (e.g. a between value
// that is not a two-element pair). Evaluation treats it as false.
var ErrMalformedFilter = errors.New("malformed filter rule")

// ErrSchedulingConflict covers schedules that can never fire, e.g. a
// recurring end date already in the past.
var ErrSchedulingConflict = errors.New("scheduling conflict")

// ErrInvalidTransition is returned for campaign status changes the state
// machine does not allow.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid campaign transition %s -> %s", e.From, e.To)
}

package dispatch

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// RenderedMessage is what a channel provider actually receives.
type RenderedMessage struct {
	Subject string
	Body    string
	HTML    string
}

// Sender is the narrow interface to a real delivery provider. One
// implementation per channel; all of them are external collaborators.
type Sender interface {
	Send(ctx context.Context, channel model.Channel, userID string, msg RenderedMessage) error
}

// SenderRegistry routes a send to the provider for its channel.
type SenderRegistry map[model.Channel]Sender

func (r SenderRegistry) Send(ctx context.Context, channel model.Channel, userID string, msg RenderedMessage) error {
	s, ok := r[channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", channel)
	}
	return s.Send(ctx, channel, userID, msg)
}

// MockSender simulates a provider with a fixed success rate. Used by the
// seeded dev setup until real providers are wired in.
type MockSender struct {
	SuccessRate float64
}

func (m *MockSender) Send(ctx context.Context, channel model.Channel, userID string, msg RenderedMessage) error {
	if rand.Float64() < m.SuccessRate {
		return nil
	}
	return fmt.Errorf("mock sending failed")
}

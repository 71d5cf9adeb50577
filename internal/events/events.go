package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Redis channels, one per consumer concern. Control carries
// operator signals back into the workers.
const (
	ChannelTrade      = "events:trade"
	ChannelEscrow     = "events:escrow"
	ChannelAutoCancel = "events:autocancel"
	ChannelControl    = "events:control"
)

// Event types
const (
	EventTradeStateChanged    = "trade_state_changed"
	EventEscrowStateChanged   = "escrow_state_changed"
	EventEscrowBalanceChanged = "escrow_balance_changed"
	EventAutoCancelSubmitted  = "autocancel_submitted"
	EventAutoCancelFailed     = "autocancel_failed"
	EventNetworksChanged      = "networks_changed"
)

type Event struct {
	ID      uuid.UUID      `json:"id"`
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

// New stamps a fresh envelope around the payload.
func New(eventType string, payload map[string]any) Event {
	return Event{
		ID:      uuid.New(),
		Type:    eventType,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(Event)) error
}

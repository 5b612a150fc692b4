package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPlaced        = "OrderPlaced"
	TypePaymentCaptured    = "PaymentCaptured"
	TypeOrderStatusChanged = "OrderStatusChanged"
	TypeCaptureOrphaned    = "CaptureOrphaned"
)

// Event is the envelope written to the events topic
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// EventType lets transports tag messages without decoding the payload
func (e Event) EventType() string {
	return e.Type
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type OrderPlaced struct {
	OrderID       string          `json:"order_id"`
	AccountID     string          `json:"account_id"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Lines         int             `json:"lines"`
}

type PaymentCaptured struct {
	OrderID         string          `json:"order_id"`
	ExternalOrderID string          `json:"external_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type OrderStatusChanged struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// CaptureOrphaned is raised when the gateway took the money but the local
// order could not be written
type CaptureOrphaned struct {
	ExternalOrderID string          `json:"external_order_id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason"`
}

// Publisher is implemented by the Kafka producer
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// New wraps a payload in an envelope
func New(eventType, aggregateID string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        raw,
	}, nil
}

// Emit publishes best-effort; failures are logged, never returned.
// A nil publisher is a no-op.
func Emit(ctx context.Context, p Publisher, eventType, aggregateID string, data any) {
	if p == nil {
		return
	}
	evt, err := New(eventType, aggregateID, data)
	if err != nil {
		log.Printf("[Events] %v", err)
		return
	}
	if err := p.Publish(ctx, aggregateID, evt); err != nil {
		log.Printf("[Events] Failed to publish %s for %s: %v", eventType, aggregateID, err)
	}
}

// Parse decodes a raw message into an envelope
func Parse(value []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("failed to parse event: missing type")
	}
	return evt, nil
}

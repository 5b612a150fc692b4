package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}

func TestEmit_PublishesEnvelope(t *testing.T) {
	p := &recordingPublisher{}

	Emit(context.Background(), p, TypeOrderPlaced, "order-1", OrderPlaced{
		OrderID: "order-1",
		Total:   decimal.RequireFromString("45.00"),
	})

	require.Len(t, p.events, 1)
	assert.Equal(t, "order-1", p.keys[0])

	evt := p.events[0].(Event)
	assert.Equal(t, TypeOrderPlaced, evt.EventType())
	assert.NotEmpty(t, evt.ID)

	var payload OrderPlaced
	require.NoError(t, evt.Decode(&payload))
	assert.True(t, payload.Total.Equal(decimal.RequireFromString("45")))
}

func TestEmit_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, TypeOrderPlaced, "order-1", OrderPlaced{})
	})
}

func TestEmit_SwallowsPublishError(t *testing.T) {
	p := &recordingPublisher{err: errors.New("broker down")}

	assert.NotPanics(t, func() {
		Emit(context.Background(), p, TypeOrderPlaced, "order-1", OrderPlaced{})
	})
	assert.Len(t, p.events, 1)
}

func TestParse_RoundTrip(t *testing.T) {
	evt, err := New(TypeCaptureOrphaned, "PAY-1", CaptureOrphaned{ExternalOrderID: "PAY-1", Reason: "db down"})
	require.NoError(t, err)
	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	parsed, err := Parse(raw)

	require.NoError(t, err)
	assert.Equal(t, TypeCaptureOrphaned, parsed.Type)
	var payload CaptureOrphaned
	require.NoError(t, parsed.Decode(&payload))
	assert.Equal(t, "db down", payload.Reason)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"id":"x"}`))
	assert.ErrorContains(t, err, "missing type")
}

package mocks

import (
	"context"
	"sync"
)

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key   string
	Event any
}

// MockPublisher records published events for assertions
type MockPublisher struct {
	mu  sync.Mutex
	Err error

	PublishCalls []PublishCall
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishCalls: make([]PublishCall, 0)}
}

func (p *MockPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PublishCalls = append(p.PublishCalls, PublishCall{Key: key, Event: event})
	return p.Err
}

// Calls returns a copy of the recorded calls
func (p *MockPublisher) Calls() []PublishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishCall(nil), p.PublishCalls...)
}

// Package notify publishes run lifecycle events downstream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one captured event.
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryPublisher records events in memory. Used in tests and when no
// broker is configured.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	seq      int
}

// NewMemoryPublisher returns an empty publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *MemoryPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.messages = append(p.messages, Message{Topic: topic, Payload: data})
	return fmt.Sprintf("mem-%d", p.seq), nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

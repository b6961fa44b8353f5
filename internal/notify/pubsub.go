package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
)

// PubSubConfig names the Google Cloud project and topic layout. Logical
// topics like "job.persisted" map to Pub/Sub topics "<prefix>job-persisted".
type PubSubConfig struct {
	ProjectID   string
	TopicPrefix string
}

// PubSubPublisher publishes events to Google Cloud Pub/Sub.
type PubSubPublisher struct {
	cfg    PubSubConfig
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher connects to Pub/Sub.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubPublisher{
		cfg:    cfg,
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends the JSON-encoded payload and blocks until the broker
// acknowledges it, returning the server message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": topic},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

// Close flushes outstanding publishes and releases the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubPublisher) topic(logical string) *pubsub.Topic {
	name := p.cfg.TopicPrefix + strings.ReplaceAll(logical, ".", "-")
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t
	}
	t := p.client.Topic(name)
	p.topics[name] = t
	return t
}

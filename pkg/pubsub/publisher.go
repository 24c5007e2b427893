package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
)

const (
	AttrEventType  = "event_type"
	AttrOccurredAt = "occurred_at"
)

// EventPublisher publishes JSON-encoded domain events to one topic and waits for
// the server to acknowledge each message.
type EventPublisher struct {
	send func(ctx context.Context, msg *pubsub.Message) (string, error)
	stop func()
	now  func() time.Time
}

// NewEventPublisher wraps a topic publisher.
func NewEventPublisher(p *pubsub.Publisher) (*EventPublisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &EventPublisher{
		send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return p.Publish(ctx, msg).Get(ctx)
		},
		stop: p.Stop,
		now:  time.Now,
	}, nil
}

// PublishEvent marshals payload and publishes it with eventType and the provided
// attributes.
func (p *EventPublisher) PublishEvent(ctx context.Context, eventType string, attributes map[string]string, payload any) error {
	if p == nil || p.send == nil {
		return errors.New("event publisher not initialized")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	attrs := make(map[string]string, len(attributes)+2)
	for k, v := range attributes {
		attrs[k] = v
	}
	attrs[AttrEventType] = eventType
	attrs[AttrOccurredAt] = p.now().UTC().Format(time.RFC3339Nano)

	if _, err := p.send(ctx, &pubsub.Message{Data: data, Attributes: attrs}); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *EventPublisher) Stop() {
	if p == nil || p.stop == nil {
		return
	}
	p.stop()
}

package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modcatalog/apiserver/types"
)

// Publisher is the publishing half of a Backend.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber is the consuming half of a Backend.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
}

// AuditPublisher publishes audit events as JSON to a single channel.
type AuditPublisher struct {
	publisher Publisher
	channel   string
}

func NewAuditPublisher(publisher Publisher, channel string) *AuditPublisher {
	return &AuditPublisher{publisher: publisher, channel: channel}
}

// Record publishes event. The event kind travels as an attribute so
// consumers can filter without decoding the body.
func (p *AuditPublisher) Record(ctx context.Context, event types.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.publisher.Publish(ctx, p.channel, data, map[string]string{
		AttrContentType: "application/json",
		"kind":          string(event.Kind),
	})
	if err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.Kind, err)
	}
	return nil
}

// SubscribeAudit decodes audit events from channel and hands them to fn
// until ctx is done. Messages that do not decode are acknowledged and
// passed over.
func SubscribeAudit(ctx context.Context, subscriber Subscriber, channel string, fn func(context.Context, types.AuditEvent) error) error {
	return subscriber.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		var event types.AuditEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// Package events fans job lifecycle events out from workers to gateway
// processes over a redis pub/sub channel. Delivery is at-least-once for
// connected subscribers; events fired before a subscriber connects are
// not replayed (the gateway falls back to polling for those).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"survey-export/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventType names a job lifecycle transition
type EventType string

const (
	TypeProgress  EventType = "progress"
	TypeCompleted EventType = "completed"
	TypeFailed    EventType = "failed"
)

// Event is one job lifecycle notification
type Event struct {
	JobID    string               `json:"jobId"`
	Type     EventType            `json:"type"`
	Progress int                  `json:"progress,omitempty"`
	Result   *models.ExportResult `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Publisher emits lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus publishes and subscribes to lifecycle events via redis
type Bus struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger
}

// NewBus creates an event bus on the given redis channel
func NewBus(client *redis.Client, channel string, logger *logrus.Logger) *Bus {
	return &Bus{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Publish emits one event to all currently connected subscribers
func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscription is a cancellable handle on a filtered event stream
type Subscription interface {
	// Events returns the channel of matching events. It is closed when
	// the subscription is closed or the underlying connection drops.
	Events() <-chan Event
	Close() error
}

type redisSubscription struct {
	events chan Event
	pubsub *redis.PubSub
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe returns a subscription delivering events for one job id.
// A slow consumer may miss events; the queue state remains the source
// of truth.
func (b *Bus) Subscribe(ctx context.Context, jobID string) Subscription {
	pubsub := b.client.Subscribe(ctx, b.channel)

	sub := &redisSubscription{
		events: make(chan Event, 16),
		pubsub: pubsub,
	}

	go b.forward(pubsub.Channel(), sub.events, jobID)

	return sub
}

// forward narrows the channel's raw message stream down to one job's
// events, dropping malformed payloads and closing out when the source
// channel closes.
func (b *Bus) forward(msgs <-chan *redis.Message, out chan<- Event, jobID string) {
	defer close(out)
	for msg := range msgs {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.WithError(err).Warn("dropping malformed lifecycle event")
			continue
		}
		if event.JobID != jobID {
			continue
		}
		select {
		case out <- event:
		default:
			b.logger.WithField("job_id", jobID).Warn("subscriber too slow, dropping event")
		}
	}
}

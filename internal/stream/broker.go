// Package stream fans out freshly stored audit records to live subscribers
// through Redis pub/sub, one channel per tenant.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/trailview/trailview/internal/audit"
)

const channelPrefix = "trailview:stream:"

// Broker publishes and subscribes to per-tenant audit record batches.
type Broker struct {
	client *redis.Client
	buffer int
}

// NewBroker constructs a Broker over the given Redis client. buffer is the
// per-subscription channel depth; slow subscribers drop batches rather than
// block the fan-out loop.
func NewBroker(client *redis.Client, buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{client: client, buffer: buffer}
}

// Publish broadcasts a batch of records to the tenant's channel.
func (b *Broker) Publish(ctx context.Context, tenantID string, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("stream: encode batch: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+tenantID, payload).Err(); err != nil {
		return fmt.Errorf("stream: publish: %w", err)
	}
	return nil
}

// Subscription is a live feed of record batches for one tenant.
type Subscription struct {
	pubsub *redis.PubSub
	ch     chan []audit.Record
}

// Subscribe opens a subscription for the tenant. The returned subscription
// must be closed by the caller; the forwarding goroutine exits when either
// the context or the subscription is closed.
func (b *Broker) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+tenantID)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("stream: subscribe: %w", err)
	}

	sub := &Subscription{pubsub: pubsub, ch: make(chan []audit.Record, b.buffer)}
	go sub.forward(ctx)
	return sub, nil
}

// Records returns the channel delivering record batches. It is closed when
// the subscription ends.
func (s *Subscription) Records() <-chan []audit.Record {
	return s.ch
}

// Close tears down the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

func (s *Subscription) forward(ctx context.Context) {
	defer close(s.ch)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var records []audit.Record
			if err := json.Unmarshal([]byte(msg.Payload), &records); err != nil {
				continue
			}
			select {
			case s.ch <- records:
			default:
				// Slow subscriber; drop the batch. The list endpoint remains
				// the authoritative source.
			}
		}
	}
}

package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// relayStreamMaxLen is the approximate maximum length for the event stream,
// enforced via XADD MAXLEN ~.
const relayStreamMaxLen int64 = 10000

// EventRelay implements domain.EventRelay. Every payload goes out twice:
// PUBLISH for live out-of-process subscribers and XADD into one capped
// stream so late consumers can replay recent history.
type EventRelay struct {
	rdb    *redis.Client
	stream string
}

// NewEventRelay creates an EventRelay writing to the given stream key.
func NewEventRelay(c *Client, stream string) *EventRelay {
	return &EventRelay{rdb: c.Underlying(), stream: stream}
}

// Publish sends the payload to the channel and appends it to the stream.
func (r *EventRelay) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: relayStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"channel": channel,
			"payload": payload,
		},
	}
	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", r.stream, err)
	}

	return nil
}

// Compile-time interface check.
var _ domain.EventRelay = (*EventRelay)(nil)

package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// DefaultStreamMaxLen is the approximate XADD MAXLEN used when none is given.
const DefaultStreamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for ephemeral
// market data and Redis Streams for ordered execution history.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus backed by the given Client. Streams are
// trimmed to roughly maxLen entries (DefaultStreamMaxLen when <= 0).
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload under the "payload" field with XADD MAXLEN ~.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamTail returns up to count of the newest entries of stream, newest
// first. A missing stream yields an empty slice.
func (sb *SignalBus) StreamTail(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	msgs, err := sb.rdb.XRevRangeN(ctx, stream, "+", "-", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream tail %s: %w", stream, err)
	}

	out := make([]domain.StreamMessage, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		out = append(out, domain.StreamMessage{ID: msg.ID, Payload: data})
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

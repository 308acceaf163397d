// Package bus publishes alert payloads on Redis pub/sub.
package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes to Redis channels.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a bus on the given Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// PublishBatch publishes all payloads in one MULTI/EXEC transaction and returns the
// subscriber count for each. Any failure fails the whole batch.
func (b *RedisBus) PublishBatch(ctx context.Context, channel string, payloads [][]byte) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(payloads))
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range payloads {
			cmds[i] = pipe.Publish(ctx, channel, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish batch of %d to %s: %w", len(payloads), channel, err)
	}

	receivers := make([]int64, len(cmds))
	for i, cmd := range cmds {
		receivers[i] = cmd.Val()
	}
	return receivers, nil
}

// Publish publishes a single payload and returns how many subscribers received it.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

package runstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EnqueueChain pushes a serialized chain descriptor onto the deferred-work list.
// Chains are consumed in FIFO order by DequeueChain.
func (c *Client) EnqueueChain(ctx context.Context, payload []byte) error {
	if err := c.rdb.LPush(ctx, ChainsKey(c.namespace), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue chain: %w", err)
	}
	return nil
}

// DequeueChain blocks for up to timeout waiting for the next chain descriptor.
// Returns (nil, redis.Nil) when the timeout elapses with nothing queued.
func (c *Client) DequeueChain(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := c.rdb.BRPop(ctx, timeout, ChainsKey(c.namespace)).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to dequeue chain: %w", err)
	}

	// BRPOP replies with [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(result))
	}
	return []byte(result[1]), nil
}

// PendingChains returns the number of chains waiting for a worker.
func (c *Client) PendingChains(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, ChainsKey(c.namespace)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending chains: %w", err)
	}
	return n, nil
}

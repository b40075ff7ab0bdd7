// Package queue carries chains from the API to worker processes through a
// Redis list and executes them with bounded concurrency.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/pkg/runstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// envelope is the queued form of a chain. Trace carries the submitter's span
// context so worker spans join the same trace.
type envelope struct {
	Chain      orchestrator.Chain     `json:"chain"`
	Trace      propagation.MapCarrier `json:"trace,omitempty"`
	EnqueuedAt int64                  `json:"enqueued_at"`
}

// RedisScheduler implements orchestrator.Scheduler on the run store's chain list.
type RedisScheduler struct {
	client *runstore.Client
}

// NewRedisScheduler creates a scheduler pushing to client's namespace.
func NewRedisScheduler(client *runstore.Client) *RedisScheduler {
	return &RedisScheduler{client: client}
}

// Schedule enqueues chain for the next free worker.
func (s *RedisScheduler) Schedule(ctx context.Context, chain orchestrator.Chain) error {
	payload, err := encode(ctx, chain)
	if err != nil {
		return err
	}
	if err := s.client.EnqueueChain(ctx, payload); err != nil {
		return fmt.Errorf("failed to enqueue chain for run %s: %w", chain.RunID, err)
	}
	return nil
}

func encode(ctx context.Context, chain orchestrator.Chain) ([]byte, error) {
	env := envelope{
		Chain:      chain,
		Trace:      propagation.MapCarrier{},
		EnqueuedAt: time.Now().Unix(),
	}
	otel.GetTextMapPropagator().Inject(ctx, env.Trace)

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chain: %w", err)
	}
	return payload, nil
}

func decode(ctx context.Context, payload []byte) (context.Context, orchestrator.Chain, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ctx, orchestrator.Chain{}, fmt.Errorf("failed to decode chain: %w", err)
	}
	if env.Chain.RunID == "" {
		return ctx, orchestrator.Chain{}, fmt.Errorf("chain has no run id")
	}
	if len(env.Trace) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, env.Trace)
	}
	return ctx, env.Chain, nil
}

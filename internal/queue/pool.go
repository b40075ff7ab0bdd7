package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/teamflow/internal/observability"
	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// Runner executes the two units of a chain.
type Runner interface {
	Execute(ctx context.Context, chain orchestrator.Chain) error
	Finalize(ctx context.Context, chain orchestrator.Chain) error
}

// PoolConfig holds configuration for a worker pool.
type PoolConfig struct {
	Concurrency    int
	DequeueTimeout time.Duration // How long one BRPOP blocks (default: 2s)
}

// Pool pulls chains from Redis and runs up to Concurrency of them at once.
// A given chain is popped by exactly one pool.
type Pool struct {
	client  *runstore.Client
	runner  Runner
	config  PoolConfig
	metrics *observability.Metrics
	done    chan struct{}
}

// NewPool creates a worker pool.
func NewPool(client *runstore.Client, runner Runner, config PoolConfig, metrics *observability.Metrics) *Pool {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = 2 * time.Second
	}
	return &Pool{
		client:  client,
		runner:  runner,
		config:  config,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Run starts the pull loop and blocks until ctx is cancelled.
// On cancellation it stops dequeuing and waits for in-flight chains to finish.
func (p *Pool) Run(ctx context.Context) error {
	log.Printf("[Worker] Starting pool with concurrency %d", p.config.Concurrency)

	sem := make(chan struct{}, p.config.Concurrency)
	var wg sync.WaitGroup
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker] Shutting down, waiting for running chains to finish...")
			wg.Wait()
			return nil
		case sem <- struct{}{}:
		}

		payload, err := p.client.DequeueChain(ctx, p.config.DequeueTimeout)
		if err != nil {
			<-sem
			if runstore.IsNotFound(err) || ctx.Err() != nil {
				continue
			}
			log.Printf("[Worker] Dequeue error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		chainCtx, chain, err := decode(context.WithoutCancel(ctx), payload)
		if err != nil {
			<-sem
			log.Printf("[Worker] Dropping malformed chain: %v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.RunChain(chainCtx, chain); err != nil {
				log.Printf("[Worker] Chain for run %s failed: %v", chain.RunID, err)
			}
		}()
	}
}

// Done returns a channel that is closed when the pool has fully stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// RunChain executes chain and finalizes it when execution succeeded.
func (p *Pool) RunChain(ctx context.Context, chain orchestrator.Chain) error {
	p.metrics.ChainStarted()
	defer p.metrics.ChainDone()

	log.Printf("[Worker] Running chain for run %s from %s", chain.RunID, chain.Start)
	if err := p.runner.Execute(ctx, chain); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if err := p.runner.Finalize(ctx, chain); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

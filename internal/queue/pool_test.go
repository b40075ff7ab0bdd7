package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) *runstore.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := runstore.NewClient(&redis.Options{Addr: mr.Addr()}, "test-queue", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

type fakeRunner struct {
	mu        sync.Mutex
	executed  []orchestrator.Chain
	finalized []orchestrator.Chain
	execErr   error
	block     chan struct{}
	active    int32
	maxActive int32
}

func (r *fakeRunner) Execute(ctx context.Context, chain orchestrator.Chain) error {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		max := atomic.LoadInt32(&r.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxActive, max, n) {
			break
		}
	}
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, chain)
	return r.execErr
}

func (r *fakeRunner) Finalize(ctx context.Context, chain orchestrator.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, chain)
	return nil
}

func (r *fakeRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executed), len(r.finalized)
}

func startPool(t *testing.T, pool *Pool) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-pool.Done()
	})
	return cancel
}

func TestScheduleRoundTrip(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	chain := orchestrator.Chain{RunID: "run_1", Start: pipeline.StageVerification, Generation: 3}

	require.NoError(t, NewRedisScheduler(client).Schedule(ctx, chain))

	pending, err := client.PendingChains(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	payload, err := client.DequeueChain(ctx, time.Second)
	require.NoError(t, err)
	_, decoded, err := decode(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, chain, decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, _, err := decode(context.Background(), []byte("not json"))
	assert.Error(t, err)

	_, _, err = decode(context.Background(), []byte(`{"chain":{"start_step":"intake"}}`))
	assert.Error(t, err)

	_, _, err = decode(context.Background(), []byte(`{"chain":{"run_id":"r","start_step":"deploy"}}`))
	assert.Error(t, err)
}

func TestPoolRunsScheduledChains(t *testing.T) {
	client := setupTestClient(t)
	runner := &fakeRunner{}
	pool := NewPool(client, runner, PoolConfig{Concurrency: 2, DequeueTimeout: time.Second}, nil)
	scheduler := NewRedisScheduler(client)
	ctx := context.Background()

	// A malformed entry is dropped without stopping the pool.
	require.NoError(t, client.EnqueueChain(ctx, []byte("garbage")))
	for _, id := range []string{"run_a", "run_b", "run_c"} {
		require.NoError(t, scheduler.Schedule(ctx, orchestrator.Chain{RunID: id, Start: pipeline.First, Generation: 1}))
	}

	startPool(t, pool)

	require.Eventually(t, func() bool {
		executed, finalized := runner.counts()
		return executed == 3 && finalized == 3
	}, 5*time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	var ids []string
	for _, c := range runner.executed {
		ids = append(ids, c.RunID)
	}
	runner.mu.Unlock()
	assert.ElementsMatch(t, []string{"run_a", "run_b", "run_c"}, ids)
}

func TestPoolSkipsFinalizeOnFailure(t *testing.T) {
	runner := &fakeRunner{execErr: errors.New("stage failed")}
	pool := NewPool(setupTestClient(t), runner, PoolConfig{}, nil)

	err := pool.RunChain(context.Background(), orchestrator.Chain{RunID: "run_x", Start: pipeline.First})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage failed")

	executed, finalized := runner.counts()
	assert.Equal(t, 1, executed)
	assert.Equal(t, 0, finalized)
}

func TestPoolRespectsConcurrency(t *testing.T) {
	client := setupTestClient(t)
	runner := &fakeRunner{block: make(chan struct{})}
	pool := NewPool(client, runner, PoolConfig{Concurrency: 2, DequeueTimeout: time.Second}, nil)
	scheduler := NewRedisScheduler(client)
	ctx := context.Background()

	for _, id := range []string{"run_1", "run_2", "run_3", "run_4"} {
		require.NoError(t, scheduler.Schedule(ctx, orchestrator.Chain{RunID: id, Start: pipeline.First, Generation: 1}))
	}

	startPool(t, pool)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.active) == 2
	}, 5*time.Second, 10*time.Millisecond)

	pending, err := client.PendingChains(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending, "no more than two chains are taken while slots are full")

	close(runner.block)
	require.Eventually(t, func() bool {
		_, finalized := runner.counts()
		return finalized == 4
	}, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxActive), int32(2))
}

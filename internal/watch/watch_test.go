package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) *runstore.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := runstore.NewClient(&redis.Options{Addr: mr.Addr()}, "test-watch", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func appendEvents(t *testing.T, client *runstore.Client, runID string, types ...runstore.EventType) {
	for _, typ := range types {
		_, err := client.AppendEvent(context.Background(), runID, runstore.NewEvent(typ))
		require.NoError(t, err)
	}
}

func TestStartOffset(t *testing.T) {
	tests := []struct {
		start       int64
		lastEventID string
		want        int64
	}{
		{0, "", 0},
		{-4, "", 0},
		{3, "", 3},
		{0, "4", 5},
		{10, "4", 10},
		{2, " 7 ", 8},
		{2, "abc", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StartOffset(tt.start, tt.lastEventID), "start=%d last=%q", tt.start, tt.lastEventID)
	}
}

func TestStream(t *testing.T) {
	t.Run("replays from offset then heartbeats until deadline", func(t *testing.T) {
		client := setupTestClient(t)
		appendEvents(t, client, "run_1", runstore.EventRunStarted, runstore.EventStepStarted, runstore.EventStepCompleted)

		var frames []Frame
		err := Stream(context.Background(), client, "run_1", Options{
			Start:        1,
			PollInterval: 10 * time.Millisecond,
			MaxDuration:  80 * time.Millisecond,
		}, func(f Frame) error {
			frames = append(frames, f)
			return nil
		})
		require.NoError(t, err)

		require.GreaterOrEqual(t, len(frames), 3)
		assert.Equal(t, int64(1), frames[0].Record.ID)
		assert.Equal(t, runstore.EventStepStarted, frames[0].Record.Event.Type)
		assert.Equal(t, int64(2), frames[1].Record.ID)
		for _, f := range frames[2:] {
			assert.True(t, f.Heartbeat)
		}
	})

	t.Run("picks up events appended while streaming", func(t *testing.T) {
		client := setupTestClient(t)
		appendEvents(t, client, "run_2", runstore.EventRunStarted)

		var ids []int64
		err := Stream(context.Background(), client, "run_2", Options{
			LastEventID:    "0",
			PollInterval:   10 * time.Millisecond,
			MaxDuration:    5 * time.Second,
			StopOnTerminal: true,
		}, func(f Frame) error {
			if f.Heartbeat && len(ids) == 0 {
				appendEvents(t, client, "run_2", runstore.EventStepStarted, runstore.EventRunCompleted)
			}
			if !f.Heartbeat {
				ids = append(ids, f.Record.ID)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids, "each id is delivered once, in order")
	})

	t.Run("emit error ends the stream", func(t *testing.T) {
		client := setupTestClient(t)
		boom := errors.New("client gone")

		err := Stream(context.Background(), client, "run_3", Options{PollInterval: 10 * time.Millisecond}, func(Frame) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("context cancellation ends the stream", func(t *testing.T) {
		client := setupTestClient(t)
		ctx, cancel := context.WithCancel(context.Background())

		err := Stream(ctx, client, "run_4", Options{PollInterval: 10 * time.Millisecond}, func(Frame) error {
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPollForTerminal(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.InitRun(ctx, "run_p", "idea", nil))

	go func() {
		time.Sleep(50 * time.Millisecond)
		client.SetRunStatus(ctx, "run_p", runstore.RunStatusCompleted)
	}()

	status, err := PollForTerminal(ctx, client, "run_p", 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, runstore.RunStatusCompleted, status)

	_, err = PollForTerminal(ctx, client, "run_missing", 10*time.Millisecond, time.Second)
	assert.Error(t, err)

	require.NoError(t, client.InitRun(ctx, "run_slow", "idea", nil))
	_, err = PollForTerminal(ctx, client, "run_slow", 10*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

package runstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the retention window applied to every run key when none is configured.
const DefaultTTL = 6 * time.Hour

// Client provides namespace-scoped Redis operations for run state.
// Every write refreshes the TTL of the key it touches.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

// NewClient creates a new run store client.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: deployment identifier used to prefix every key (must not be empty)
//   - ttl: retention window for run keys; DefaultTTL when zero or negative
//
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string, ttl time.Duration) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		ttl:       ttl,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Namespace returns the key namespace this client writes under.
func (c *Client) Namespace() string {
	return c.namespace
}

// TTL returns the retention window applied on every write.
func (c *Client) TTL() time.Duration {
	return c.ttl
}

// InitRun creates the metadata, idea and step status keys for a new run.
// The run starts queued at generation 1. Calling InitRun twice for the same id
// overwrites the previous values field by field.
func (c *Client) InitRun(ctx context.Context, runID, idea string, steps map[string]StepStatus) error {
	meta := &RunMeta{
		Status:     RunStatusQueued,
		CreatedAt:  time.Now().Unix(),
		Generation: 1,
	}

	metaKey := MetaKey(c.namespace, runID)
	ideaKey := IdeaKey(c.namespace, runID)
	stepsKey := StepsKey(c.namespace, runID)

	stepValues := make(map[string]interface{}, len(steps))
	for step, status := range steps {
		stepValues[step] = string(status)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey, MetaToHash(meta))
		pipe.Set(ctx, ideaKey, idea, c.ttl)
		if len(stepValues) > 0 {
			pipe.HSet(ctx, stepsKey, stepValues)
		}
		pipe.Expire(ctx, metaKey, c.ttl)
		pipe.Expire(ctx, stepsKey, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialise run %s: %w", runID, err)
	}

	return nil
}

// RunExists checks whether a run's metadata hash is present.
func (c *Client) RunExists(ctx context.Context, runID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, MetaKey(c.namespace, runID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run existence: %w", err)
	}
	return n > 0, nil
}

// GetIdea returns the idea submitted with the run.
// Returns ("", redis.Nil) if the run doesn't exist.
func (c *Client) GetIdea(ctx context.Context, runID string) (string, error) {
	idea, err := c.rdb.Get(ctx, IdeaKey(c.namespace, runID)).Result()
	if err != nil {
		if IsNotFound(err) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to read idea: %w", err)
	}
	return idea, nil
}

// SetRunMeta merges arbitrary fields into the metadata hash.
// An empty map is a no-op.
func (c *Client) SetRunMeta(ctx context.Context, runID string, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	key := MetaKey(c.namespace, runID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}

// GetRunMeta reads and decodes the metadata hash.
// Returns (nil, redis.Nil) if the run doesn't exist.
func (c *Client) GetRunMeta(ctx context.Context, runID string) (*RunMeta, error) {
	hash, err := c.rdb.HGetAll(ctx, MetaKey(c.namespace, runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run metadata: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	meta, err := HashToMeta(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode run metadata: %w", err)
	}
	return meta, nil
}

// SetRunStatus records a run status and its update time.
func (c *Client) SetRunStatus(ctx context.Context, runID string, status RunStatus) error {
	return c.SetRunMeta(ctx, runID, map[string]interface{}{
		fieldStatus:    string(status),
		fieldUpdatedAt: time.Now().Unix(),
	})
}

// markRunningScript moves a run to running unless it was cancelled or its
// generation no longer matches ARGV[5]. A generation of 0 skips the generation check.
// Returns -1 when the run has no status, 0 when the run was left alone and 1 on success.
var markRunningScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], ARGV[1])
if not status then
	return -1
end
if status == ARGV[3] then
	return 0
end
if ARGV[5] ~= '0' and redis.call('HGET', KEYS[1], ARGV[2]) ~= ARGV[5] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[4], ARGV[6], ARGV[7])
redis.call('EXPIRE', KEYS[1], ARGV[8])
return 1
`)

// MarkRunning atomically sets the run status to running for the given generation.
// It reports false, without writing, when the run is cancelled or a newer
// generation owns it. Returns (false, redis.Nil) if the run doesn't exist.
func (c *Client) MarkRunning(ctx context.Context, runID string, generation int64) (bool, error) {
	res, err := markRunningScript.Run(ctx, c.rdb, []string{MetaKey(c.namespace, runID)},
		fieldStatus,
		fieldGeneration,
		string(RunStatusCancelled),
		string(RunStatusRunning),
		strconv.FormatInt(generation, 10),
		fieldUpdatedAt,
		time.Now().Unix(),
		int64(c.ttl/time.Second),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to mark run running: %w", err)
	}
	switch res {
	case -1:
		return false, redis.Nil
	case 0:
		return false, nil
	}
	return true, nil
}

// GetRunStatus returns the current run status.
// Returns ("", redis.Nil) if the run doesn't exist or carries no status.
func (c *Client) GetRunStatus(ctx context.Context, runID string) (RunStatus, error) {
	status, err := c.rdb.HGet(ctx, MetaKey(c.namespace, runID), fieldStatus).Result()
	if err != nil {
		if IsNotFound(err) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to read run status: %w", err)
	}
	return RunStatus(status), nil
}

// IsCancelled reports whether the run's status is cancelled. Missing runs are not cancelled.
func (c *Client) IsCancelled(ctx context.Context, runID string) (bool, error) {
	status, err := c.GetRunStatus(ctx, runID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return status == RunStatusCancelled, nil
}

// IncrGeneration bumps the run generation and returns the new value.
// Chains scheduled under an older generation treat themselves as stale.
func (c *Client) IncrGeneration(ctx context.Context, runID string) (int64, error) {
	key := MetaKey(c.namespace, runID)
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldGeneration, 1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment generation: %w", err)
	}
	return incr.Val(), nil
}

// SetStepStatus records the status of one stage.
func (c *Client) SetStepStatus(ctx context.Context, runID, step string, status StepStatus) error {
	key := StepsKey(c.namespace, runID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, step, string(status))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write status of step %s: %w", step, err)
	}
	return nil
}

// GetStepStatuses returns every recorded stage status.
// Returns an empty map if none exist (not an error).
func (c *Client) GetStepStatuses(ctx context.Context, runID string) (map[string]StepStatus, error) {
	raw, err := c.rdb.HGetAll(ctx, StepsKey(c.namespace, runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read step statuses: %w", err)
	}
	statuses := make(map[string]StepStatus, len(raw))
	for step, status := range raw {
		statuses[step] = StepStatus(status)
	}
	return statuses, nil
}

// SetArtifact stores an artifact, overwriting any previous content.
func (c *Client) SetArtifact(ctx context.Context, runID, name, content string) error {
	if err := c.rdb.Set(ctx, ArtifactKey(c.namespace, runID, name), content, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return nil
}

// GetArtifact returns an artifact's content.
// Returns ("", redis.Nil) if the artifact doesn't exist.
func (c *Client) GetArtifact(ctx context.Context, runID, name string) (string, error) {
	content, err := c.rdb.Get(ctx, ArtifactKey(c.namespace, runID, name)).Result()
	if err != nil {
		if IsNotFound(err) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return content, nil
}

// ListArtifacts returns a presence map over the closed artifact name set.
func (c *Client) ListArtifacts(ctx context.Context, runID string) (map[string]bool, error) {
	names := ArtifactNames()
	cmds := make([]*redis.IntCmd, len(names))
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.Exists(ctx, ArtifactKey(c.namespace, runID, name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	present := make(map[string]bool, len(names))
	for i, name := range names {
		present[name] = cmds[i].Val() > 0
	}
	return present, nil
}

// ClearArtifacts deletes the named artifacts. Names that don't exist are ignored.
func (c *Client) ClearArtifacts(ctx context.Context, runID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = ArtifactKey(c.namespace, runID, name)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	return nil
}

// AppendEvent appends an event and returns its zero-based index in the log.
// RPUSH is atomic, so indices are contiguous even with concurrent writers.
func (c *Client) AppendEvent(ctx context.Context, runID string, event Event) (int64, error) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	raw, err := EventToJSON(event)
	if err != nil {
		return 0, err
	}

	key := EventsKey(c.namespace, runID)
	var push *redis.IntCmd
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, key, raw)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}
	return push.Val() - 1, nil
}

// GetEvents returns every event from index start (inclusive) to the end of the log.
// A negative start is treated as zero.
func (c *Client) GetEvents(ctx context.Context, runID string, start int64) ([]EventRecord, error) {
	if start < 0 {
		start = 0
	}
	raw, err := c.rdb.LRange(ctx, EventsKey(c.namespace, runID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	records := make([]EventRecord, 0, len(raw))
	for i, item := range raw {
		event, err := JSONToEvent(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", start+int64(i), err)
		}
		records = append(records, EventRecord{ID: start + int64(i), Event: event})
	}
	return records, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

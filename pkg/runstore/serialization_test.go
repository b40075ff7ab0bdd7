package runstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToMeta(t *testing.T) {
	t.Run("decodes all modelled fields", func(t *testing.T) {
		meta, err := HashToMeta(map[string]string{
			"status":     "running",
			"created_at": "1700000000",
			"updated_at": "1700000100",
			"generation": "3",
			"max_chars":  "2000",
			"fast_mode":  "true",
			"owner":      "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, RunStatusRunning, meta.Status)
		assert.Equal(t, int64(1700000000), meta.CreatedAt)
		assert.Equal(t, int64(1700000100), meta.UpdatedAt)
		assert.Equal(t, int64(3), meta.Generation)
		assert.Equal(t, 2000, meta.MaxChars)
		assert.True(t, meta.FastMode)
		assert.Equal(t, map[string]string{"owner": "alice"}, meta.Extra)
	})

	t.Run("missing status decodes as unknown", func(t *testing.T) {
		meta, err := HashToMeta(map[string]string{"created_at": "1"})
		require.NoError(t, err)
		assert.Equal(t, RunStatusUnknown, meta.Status)
	})

	t.Run("rejects malformed numbers", func(t *testing.T) {
		_, err := HashToMeta(map[string]string{"status": "queued", "generation": "x"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "generation")
	})
}

func TestMetaToHash(t *testing.T) {
	hash := MetaToHash(&RunMeta{
		Status:     RunStatusQueued,
		CreatedAt:  10,
		Generation: 1,
		Extra:      map[string]string{"status": "ignored", "owner": "bob"},
	})

	assert.Equal(t, "queued", hash["status"])
	assert.Equal(t, "bob", hash["owner"])
	assert.NotContains(t, hash, "max_chars")
	assert.NotContains(t, hash, "fast_mode")
	assert.NotContains(t, hash, "updated_at")
}

func TestEventJSON(t *testing.T) {
	raw, err := EventToJSON(Event{Type: EventStepFailed, Step: "design", Error: "boom", Timestamp: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"step_failed","step":"design","error":"boom","timestamp":42}`, raw)

	_, err = JSONToEvent("not json")
	assert.Error(t, err)
}

func TestStatusEnums(t *testing.T) {
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusCancelled.IsTerminal())
	assert.False(t, RunStatusQueued.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.Error(t, RunStatus("bogus").Validate())
	assert.NoError(t, RunStatusQueued.Validate())

	for _, s := range []StepStatus{"", StepStatusPending, StepStatusQueued, StepStatusRunning, StepStatusUnknown} {
		assert.True(t, s.Cancellable(), "status %q", s)
	}
	for _, s := range []StepStatus{StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusCancelled} {
		assert.False(t, s.Cancellable(), "status %q", s)
	}
	assert.Equal(t, EventStepCompleted, StepEventType(StepStatusCompleted))
	assert.Error(t, StepStatus("bogus").Validate())
}

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoints_Sequence(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	var seen []Checkpoint
	env.engine.onCheckpoint = func(cp Checkpoint, chain Chain) { seen = append(seen, cp) }

	env.runChain(t, env.createRun(t, "run_cp", "Build a todo app"))

	assert.Equal(t, []Checkpoint{
		CheckpointRunStart,
		CheckpointBeforeStage, CheckpointAfterInvoke, // intake
		CheckpointBeforeStage, CheckpointAfterInvoke, // design
		CheckpointBeforeStage, CheckpointAfterInvoke, // verification
		CheckpointBeforeStage, CheckpointAfterInvoke, // consultation
		CheckpointBeforeRevision, CheckpointAfterInvoke,
		CheckpointBeforeFinalize,
	}, seen)

	for _, cp := range Checkpoints() {
		assert.Contains(t, seen, cp)
	}
}

func TestCancel_MidStage(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	chain := env.createRun(t, "run_cancel", "Build a todo app")
	ctx := context.Background()

	env.agent.respond = func(call agentCall, n int) (string, error) {
		if call.Role == "QA Engineer" {
			status, err := env.engine.Cancel(ctx, "run_cancel")
			require.NoError(t, err)
			require.Equal(t, runstore.RunStatusCancelled, status)
		}
		return cannedOutput(call, n), nil
	}

	require.NoError(t, env.engine.Execute(ctx, chain))
	require.NoError(t, env.engine.Finalize(ctx, chain))

	status, _ := env.client.GetRunStatus(ctx, "run_cancel")
	assert.Equal(t, runstore.RunStatusCancelled, status)

	assert.Equal(t, map[string]runstore.StepStatus{
		"intake":       runstore.StepStatusCompleted,
		"design":       runstore.StepStatusCompleted,
		"verification": runstore.StepStatusCancelled,
		"consultation": runstore.StepStatusCancelled,
		"review":       runstore.StepStatusSkipped,
	}, env.steps(t, "run_cancel"))

	// Output that arrived after cancellation is discarded.
	_, ok := env.artifact(t, "run_cancel", "test")
	assert.False(t, ok)
	_, ok = env.artifact(t, "run_cancel", "final")
	assert.False(t, ok, "finalize is a no-op for cancelled runs")

	assert.Len(t, env.agent.Calls(), 3)
	events := env.eventTypes(t, "run_cancel")
	assert.Equal(t, []string{"step_started:verification", "run_cancelled"}, events[len(events)-2:])
}

func TestCancel_AgentErrorAfterCancelKeepsCancelled(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	chain := env.createRun(t, "run_cancel_err", "Build a todo app")
	ctx := context.Background()

	var seen []Checkpoint
	env.engine.onCheckpoint = func(cp Checkpoint, c Chain) { seen = append(seen, cp) }
	env.agent.respond = func(call agentCall, n int) (string, error) {
		if call.Role == "QA Engineer" {
			_, err := env.engine.Cancel(ctx, "run_cancel_err")
			require.NoError(t, err)
			return "", errors.New("connection reset")
		}
		return cannedOutput(call, n), nil
	}

	err := env.engine.Execute(ctx, chain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, env.engine.Finalize(ctx, chain))

	status, _ := env.client.GetRunStatus(ctx, "run_cancel_err")
	assert.Equal(t, runstore.RunStatusCancelled, status)
	assert.Equal(t, runstore.StepStatusCancelled, env.steps(t, "run_cancel_err")["verification"])
	assert.Contains(t, seen, CheckpointBeforeFail)

	events := env.eventTypes(t, "run_cancel_err")
	assert.Zero(t, countEvents(events, "step_failed:verification"))
	assert.Equal(t, "run_cancelled", events[len(events)-1])
}

func TestFailure_RecordedWhenRunStillActive(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	chain := env.createRun(t, "run_fail", "Build a todo app")
	ctx := context.Background()

	env.agent.respond = func(call agentCall, n int) (string, error) {
		if call.Role == "QA Engineer" {
			return "", errors.New("connection reset")
		}
		return cannedOutput(call, n), nil
	}

	require.Error(t, env.engine.Execute(ctx, chain))

	status, _ := env.client.GetRunStatus(ctx, "run_fail")
	assert.Equal(t, runstore.RunStatusFailed, status)
	assert.Equal(t, runstore.StepStatusFailed, env.steps(t, "run_fail")["verification"])

	events := env.eventTypes(t, "run_fail")
	assert.Equal(t, "step_failed:verification", events[len(events)-1])
}

func TestCancel_AtCheckpoint(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	chain := env.createRun(t, "run_cancel_rev", "Build a todo app")
	ctx := context.Background()

	env.engine.onCheckpoint = func(cp Checkpoint, c Chain) {
		if cp == CheckpointBeforeRevision {
			_, err := env.engine.Cancel(ctx, c.RunID)
			require.NoError(t, err)
		}
	}

	require.NoError(t, env.engine.Execute(ctx, chain))

	events := env.eventTypes(t, "run_cancel_rev")
	assert.Zero(t, countEvents(events, "revision_started:design"))
	assert.Len(t, env.agent.Calls(), 4)

	// Stages that already finished keep their status.
	for stage, status := range env.steps(t, "run_cancel_rev") {
		assert.NotEqual(t, runstore.StepStatusCancelled, status, stage)
	}
}

func TestCancel_BeforeStart(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	chain := env.createRun(t, "run_cancel_early", "Build a todo app")
	ctx := context.Background()

	status, err := env.engine.Cancel(ctx, "run_cancel_early")
	require.NoError(t, err)
	assert.Equal(t, runstore.RunStatusCancelled, status)

	require.NoError(t, env.engine.Execute(ctx, chain))
	require.NoError(t, env.engine.Finalize(ctx, chain))

	assert.Empty(t, env.agent.Calls())
	assert.Equal(t, []string{"run_cancelled"}, env.eventTypes(t, "run_cancel_early"))
	for stage, s := range env.steps(t, "run_cancel_early") {
		if stage == "review" {
			assert.Equal(t, runstore.StepStatusSkipped, s)
			continue
		}
		assert.Equal(t, runstore.StepStatusCancelled, s, stage)
	}
}

func TestCancel_TerminalRunIsNoop(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	env.runChain(t, env.createRun(t, "run_done", "Build a todo app"))
	before := env.eventTypes(t, "run_done")

	status, err := env.engine.Cancel(context.Background(), "run_done")
	require.NoError(t, err)
	assert.Equal(t, runstore.RunStatusCompleted, status)
	assert.Equal(t, before, env.eventTypes(t, "run_done"))
}

func TestCancel_UnknownRun(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	_, err := env.engine.Cancel(context.Background(), "run_missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCancel_MissingAndUnknownStepsCancelled(t *testing.T) {
	env := setupTestEngine(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, env.client.InitRun(ctx, "run_sparse", "idea", map[string]runstore.StepStatus{
		"intake": runstore.StepStatusUnknown,
		"design": runstore.StepStatusFailed,
	}))

	_, err := env.engine.Cancel(ctx, "run_sparse")
	require.NoError(t, err)

	steps := env.steps(t, "run_sparse")
	assert.Equal(t, runstore.StepStatusCancelled, steps["intake"])
	assert.Equal(t, runstore.StepStatusFailed, steps["design"])
	assert.Equal(t, runstore.StepStatusCancelled, steps["verification"], "absent stages are cancelled")
}

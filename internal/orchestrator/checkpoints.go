package orchestrator

import (
	"context"
	"fmt"

	"github.com/dyluth/teamflow/pkg/runstore"
)

// Checkpoint names a point where a chain re-reads run state and may stop.
type Checkpoint string

const (
	CheckpointRunStart       Checkpoint = "run_start"
	CheckpointBeforeStage    Checkpoint = "before_stage"
	CheckpointAfterInvoke    Checkpoint = "after_invoke"
	CheckpointBeforeRevision Checkpoint = "before_revision"
	CheckpointBeforeFinalize Checkpoint = "before_finalize"

	// CheckpointBeforeFail is reached only when a stage or finalize returns an error.
	CheckpointBeforeFail Checkpoint = "before_fail"
)

// Checkpoints lists every checkpoint in the order a successful chain first reaches them.
func Checkpoints() []Checkpoint {
	return []Checkpoint{
		CheckpointRunStart,
		CheckpointBeforeStage,
		CheckpointAfterInvoke,
		CheckpointBeforeRevision,
		CheckpointBeforeFinalize,
	}
}

// haltReason explains why a checkpoint stopped a chain. The zero value means continue.
type haltReason string

const (
	haltNone      haltReason = ""
	haltCancelled haltReason = "cancelled"
	haltStale     haltReason = "stale"
)

// checkpoint reads the run's status and generation. A cancelled run, or a chain
// whose generation has been superseded by a regeneration, halts without error.
func (e *Engine) checkpoint(ctx context.Context, cp Checkpoint, chain Chain) (haltReason, error) {
	if e.onCheckpoint != nil {
		e.onCheckpoint(cp, chain)
	}

	meta, err := e.client.GetRunMeta(ctx, chain.RunID)
	if err != nil {
		if runstore.IsNotFound(err) {
			return haltNone, fmt.Errorf("%w: %s", ErrRunNotFound, chain.RunID)
		}
		return haltNone, fmt.Errorf("checkpoint %s: %w", cp, err)
	}

	reason := haltNone
	switch {
	case meta.Status == runstore.RunStatusCancelled:
		reason = haltCancelled
	case chain.Generation != 0 && meta.Generation != chain.Generation:
		reason = haltStale
		e.metrics.StaleChain()
	}

	if reason != haltNone {
		e.logEvent("chain_halted", map[string]interface{}{
			"run_id":     chain.RunID,
			"checkpoint": string(cp),
			"reason":     string(reason),
			"generation": chain.Generation,
		})
	}
	return reason, nil
}

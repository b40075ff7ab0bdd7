package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// Cancel marks a run cancelled along with every stage that has not finished.
// Cancelling a terminal run changes nothing and reports its current status.
// In-flight agent calls are not interrupted; the running chain stops at its
// next checkpoint.
func (e *Engine) Cancel(ctx context.Context, runID string) (runstore.RunStatus, error) {
	status, err := e.client.GetRunStatus(ctx, runID)
	if err != nil {
		if runstore.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return "", err
	}
	if status.IsTerminal() {
		return status, nil
	}

	if err := e.client.SetRunStatus(ctx, runID, runstore.RunStatusCancelled); err != nil {
		return "", fmt.Errorf("failed to cancel run: %w", err)
	}

	steps, err := e.client.GetStepStatuses(ctx, runID)
	if err != nil {
		return "", err
	}
	for _, stage := range pipeline.Stages() {
		if !steps[stage.String()].Cancellable() {
			continue
		}
		if err := e.client.SetStepStatus(ctx, runID, stage.String(), runstore.StepStatusCancelled); err != nil {
			return "", fmt.Errorf("failed to cancel %s: %w", stage, err)
		}
	}

	if err := e.emit(ctx, runID, runstore.NewEvent(runstore.EventRunCancelled)); err != nil {
		return "", err
	}
	e.metrics.RunFinished(string(runstore.RunStatusCancelled))

	log.Printf("[Orchestrator] Run %s cancelled (was %s)", runID, status)
	return runstore.RunStatusCancelled, nil
}

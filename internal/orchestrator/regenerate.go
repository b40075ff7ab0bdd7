package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// Regenerate re-opens a run at stage and schedules a chain from there.
// The target stage and everything downstream lose their artifacts and return
// to pending, and the final document is cleared. The run's generation is
// bumped first so a chain still in flight stops at its next checkpoint.
func (e *Engine) Regenerate(ctx context.Context, runID, stageName string) (Chain, error) {
	exists, err := e.client.RunExists(ctx, runID)
	if err != nil {
		return Chain{}, err
	}
	if !exists {
		return Chain{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	stage, err := pipeline.ParseStage(stageName)
	if err != nil {
		return Chain{}, fmt.Errorf("%w: %q", ErrUnknownStage, stageName)
	}
	if stage == pipeline.StageReview && !e.cfg.ReviewEnabled {
		return Chain{}, fmt.Errorf("%w: %s", ErrStageDisabled, stage)
	}

	generation, err := e.client.IncrGeneration(ctx, runID)
	if err != nil {
		return Chain{}, fmt.Errorf("failed to bump generation: %w", err)
	}

	suffix := stage.From()
	var cleared []string
	for _, s := range suffix {
		cleared = append(cleared, s.Artifacts()...)
	}
	cleared = append(cleared, runstore.ArtifactFinal)
	if err := e.client.ClearArtifacts(ctx, runID, cleared); err != nil {
		return Chain{}, fmt.Errorf("failed to clear artifacts: %w", err)
	}

	for _, s := range suffix {
		if err := e.client.SetStepStatus(ctx, runID, s.String(), e.resetStatus(s)); err != nil {
			return Chain{}, fmt.Errorf("failed to reset %s: %w", s, err)
		}
	}

	if err := e.client.SetRunStatus(ctx, runID, runstore.RunStatusQueued); err != nil {
		return Chain{}, fmt.Errorf("failed to requeue run: %w", err)
	}

	event := runstore.NewEvent(runstore.EventStepRegenerate)
	event.Step = stage.String()
	if err := e.emit(ctx, runID, event); err != nil {
		return Chain{}, err
	}

	chain := Chain{RunID: runID, Start: stage, Generation: generation}
	if e.scheduler != nil {
		if err := e.scheduler.Schedule(ctx, chain); err != nil {
			return Chain{}, fmt.Errorf("failed to schedule chain: %w", err)
		}
	}

	e.logEvent("run_regenerated", map[string]interface{}{
		"run_id":     runID,
		"stage":      stage.String(),
		"generation": generation,
		"cleared":    cleared,
	})
	log.Printf("[Orchestrator] Run %s regenerating from %s (generation %d)", runID, stage, generation)
	return chain, nil
}

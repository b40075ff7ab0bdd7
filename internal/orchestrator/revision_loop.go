package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// revisionLoop re-runs the design stage RevisionIterations times, feeding it the
// latest verification artifacts. Verification and consultation are not re-run.
// Each iteration re-reads the stored artifacts, so it revises the previous
// iteration's output.
func (e *Engine) revisionLoop(ctx context.Context, chain Chain) (haltReason, error) {
	for iteration := 1; iteration <= e.cfg.RevisionIterations; iteration++ {
		halt, err := e.checkpoint(ctx, CheckpointBeforeRevision, chain)
		if err != nil || halt != haltNone {
			return halt, err
		}

		began := time.Now()
		halt, err = e.revise(ctx, chain, iteration)
		if err != nil {
			e.metrics.ObserveStage(pipeline.StageDesign.String(), string(runstore.StepStatusFailed), time.Since(began))
			return haltNone, e.failStep(ctx, chain, pipeline.StageDesign, fmt.Errorf("revision %d: %w", iteration, err))
		}
		if halt != haltNone {
			return halt, nil
		}
		e.metrics.RevisionCompleted()
	}
	return haltNone, nil
}

func (e *Engine) revise(ctx context.Context, chain Chain, iteration int) (haltReason, error) {
	ctx, span := e.tracer.Start(ctx, "stage.design.revision", trace.WithAttributes(
		attribute.String("run_id", chain.RunID),
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	started := runstore.NewEvent(runstore.EventRevisionStarted)
	started.Step = pipeline.StageDesign.String()
	started.Iteration = iteration
	if err := e.emit(ctx, chain.RunID, started); err != nil {
		return haltNone, err
	}

	if err := e.client.SetStepStatus(ctx, chain.RunID, pipeline.StageDesign.String(), runstore.StepStatusRunning); err != nil {
		return haltNone, fmt.Errorf("failed to mark design running: %w", err)
	}

	exec := pipeline.RevisionExecutor()
	in, err := e.gatherInputs(ctx, chain.RunID, exec.Requires())
	if err != nil {
		return haltNone, err
	}
	in.Feedback = pipeline.Feedback(in.Artifacts)
	in.Iteration = iteration

	output, halt, err := e.invoke(ctx, chain, exec, in)
	if err != nil || halt != haltNone {
		return halt, err
	}

	if err := e.persist(ctx, chain.RunID, pipeline.StageDesign, exec.Apply(output)); err != nil {
		return haltNone, err
	}
	if err := e.client.SetStepStatus(ctx, chain.RunID, pipeline.StageDesign.String(), runstore.StepStatusCompleted); err != nil {
		return haltNone, fmt.Errorf("failed to mark design completed: %w", err)
	}

	completed := runstore.NewEvent(runstore.EventRevisionCompleted)
	completed.Step = pipeline.StageDesign.String()
	completed.Iteration = iteration
	if err := e.emit(ctx, chain.RunID, completed); err != nil {
		return haltNone, err
	}

	log.Printf("[Orchestrator] Run %s design revision %d/%d complete", chain.RunID, iteration, e.cfg.RevisionIterations)
	return haltNone, nil
}

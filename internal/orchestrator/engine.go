// Package orchestrator drives runs through the pipeline stages: sequencing,
// the bounded design revision loop, cooperative cancellation, partial
// regeneration and final aggregation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/teamflow/internal/agent"
	"github.com/dyluth/teamflow/internal/observability"
	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config is the immutable behaviour switchboard of an Engine.
type Config struct {
	ReviewEnabled      bool
	RevisionIterations int

	// LogPayloads logs prompts and agent output, truncated to LogMaxChars.
	LogPayloads bool
	LogMaxChars int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		RevisionIterations: 1,
		LogMaxChars:        2000,
	}
}

// Chain is the unit of deferred work: execute a run from Start, then finalize.
// Generation pins the chain to the regeneration that scheduled it.
type Chain struct {
	RunID      string         `json:"run_id"`
	Start      pipeline.Stage `json:"start_step"`
	Generation int64          `json:"generation"`
}

// Scheduler submits chains for asynchronous execution.
type Scheduler interface {
	Schedule(ctx context.Context, chain Chain) error
}

// Engine executes chains against the run store.
type Engine struct {
	client    *runstore.Client
	agent     agent.Agent
	prompts   *pipeline.Prompts
	scheduler Scheduler
	cfg       Config
	metrics   *observability.Metrics
	tracer    trace.Tracer

	// onCheckpoint is called before each checkpoint reads run state (tests only).
	onCheckpoint func(Checkpoint, Chain)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records stage and run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the global pipeline tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an engine. scheduler may be nil for engines that only execute
// chains; Regenerate then leaves scheduling to the caller.
func NewEngine(client *runstore.Client, ag agent.Agent, prompts *pipeline.Prompts, scheduler Scheduler, cfg Config, opts ...Option) *Engine {
	if cfg.RevisionIterations < 0 {
		cfg.RevisionIterations = 0
	}
	if prompts == nil {
		prompts = pipeline.NewPrompts("")
	}

	e := &Engine{
		client:    client,
		agent:     ag,
		prompts:   prompts,
		scheduler: scheduler,
		cfg:       cfg,
		tracer:    observability.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// InitialSteps returns the stage statuses of a fresh run.
func (e *Engine) InitialSteps() map[string]runstore.StepStatus {
	steps := make(map[string]runstore.StepStatus)
	for _, stage := range pipeline.Stages() {
		steps[stage.String()] = e.resetStatus(stage)
	}
	return steps
}

// resetStatus is the status a stage returns to when it is (re)armed.
func (e *Engine) resetStatus(stage pipeline.Stage) runstore.StepStatus {
	if stage == pipeline.StageReview && !e.cfg.ReviewEnabled {
		return runstore.StepStatusSkipped
	}
	return runstore.StepStatusPending
}

// Execute runs every stage from chain.Start to the end of the pipeline.
// Cancellation and stale generations end the chain early with a nil error.
// A stage failure marks the stage and the run failed and is returned. A failure
// on a chain that was cancelled or regenerated mid-stage is returned without
// being recorded.
func (e *Engine) Execute(ctx context.Context, chain Chain) error {
	if !chain.Start.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownStage, chain.Start)
	}

	ctx, span := e.tracer.Start(ctx, "orchestrator.execute", trace.WithAttributes(
		attribute.String("run_id", chain.RunID),
		attribute.String("start_step", chain.Start.String()),
		attribute.Int64("generation", chain.Generation),
	))
	defer span.End()

	halt, err := e.checkpoint(ctx, CheckpointRunStart, chain)
	if err != nil || halt != haltNone {
		return err
	}

	marked, err := e.client.MarkRunning(ctx, chain.RunID, chain.Generation)
	if err != nil {
		if runstore.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, chain.RunID)
		}
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	if !marked {
		log.Printf("[Orchestrator] Run %s was cancelled or regenerated before generation %d started", chain.RunID, chain.Generation)
		return nil
	}
	started := runstore.NewEvent(runstore.EventRunStarted)
	if chain.Start != pipeline.First {
		started.StartStep = chain.Start.String()
	}
	if err := e.emit(ctx, chain.RunID, started); err != nil {
		return err
	}

	log.Printf("[Orchestrator] Run %s started at %s (generation %d)", chain.RunID, chain.Start, chain.Generation)

	for stage := chain.Start; stage != pipeline.StageNone; stage = stage.Next() {
		if stage == pipeline.StageReview {
			if chain.Start != pipeline.StageReview {
				halt, err := e.revisionLoop(ctx, chain)
				if err != nil || halt != haltNone {
					return err
				}
			}
			if !e.cfg.ReviewEnabled {
				if err := e.client.SetStepStatus(ctx, chain.RunID, stage.String(), runstore.StepStatusSkipped); err != nil {
					return fmt.Errorf("failed to skip %s: %w", stage, err)
				}
				continue
			}
		}

		halt, err := e.runStage(ctx, chain, stage)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if halt != haltNone {
			return nil
		}
	}
	return nil
}

// runStage executes a single stage end to end.
func (e *Engine) runStage(ctx context.Context, chain Chain, stage pipeline.Stage) (haltReason, error) {
	exec, err := pipeline.ExecutorFor(stage)
	if err != nil {
		return haltNone, err
	}

	halt, err := e.checkpoint(ctx, CheckpointBeforeStage, chain)
	if err != nil || halt != haltNone {
		return halt, err
	}

	ctx, span := e.tracer.Start(ctx, "stage."+stage.String(), trace.WithAttributes(
		attribute.String("run_id", chain.RunID),
		attribute.String("role", exec.Role()),
	))
	defer span.End()
	began := time.Now()

	halt, err = e.produce(ctx, chain, stage, exec)
	if err != nil {
		e.metrics.ObserveStage(stage.String(), string(runstore.StepStatusFailed), time.Since(began))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return haltNone, e.failStep(ctx, chain, stage, err)
	}
	if halt == haltNone {
		e.metrics.ObserveStage(stage.String(), string(runstore.StepStatusCompleted), time.Since(began))
	}
	return halt, nil
}

func (e *Engine) produce(ctx context.Context, chain Chain, stage pipeline.Stage, exec pipeline.Executor) (haltReason, error) {
	if err := e.client.SetStepStatus(ctx, chain.RunID, stage.String(), runstore.StepStatusRunning); err != nil {
		return haltNone, fmt.Errorf("failed to mark %s running: %w", stage, err)
	}
	started := runstore.NewEvent(runstore.EventStepStarted)
	started.Step = stage.String()
	if err := e.emit(ctx, chain.RunID, started); err != nil {
		return haltNone, err
	}

	in, err := e.gatherInputs(ctx, chain.RunID, exec.Requires())
	if err != nil {
		return haltNone, err
	}

	output, halt, err := e.invoke(ctx, chain, exec, in)
	if err != nil || halt != haltNone {
		return halt, err
	}

	if err := e.persist(ctx, chain.RunID, stage, exec.Apply(output)); err != nil {
		return haltNone, err
	}

	if err := e.client.SetStepStatus(ctx, chain.RunID, stage.String(), runstore.StepStatusCompleted); err != nil {
		return haltNone, fmt.Errorf("failed to mark %s completed: %w", stage, err)
	}
	completed := runstore.NewEvent(runstore.StepEventType(runstore.StepStatusCompleted))
	completed.Step = stage.String()
	if err := e.emit(ctx, chain.RunID, completed); err != nil {
		return haltNone, err
	}

	e.logEvent("stage_completed", map[string]interface{}{
		"run_id": chain.RunID,
		"stage":  stage.String(),
	})
	return haltNone, nil
}

// invoke renders the prompt, calls the agent and re-checks run state before
// the output may be applied.
func (e *Engine) invoke(ctx context.Context, chain Chain, exec pipeline.Executor, in pipeline.Inputs) (string, haltReason, error) {
	prompt, err := exec.Render(e.prompts, in)
	if err != nil {
		return "", haltNone, err
	}
	if e.cfg.LogPayloads {
		log.Printf("[Orchestrator] %s prompt for run %s:\n%s", exec.Role(), chain.RunID, truncate(prompt, e.cfg.LogMaxChars))
	}

	output, err := e.agent.Generate(ctx, exec.Role(), prompt)
	if err != nil {
		return "", haltNone, fmt.Errorf("%s: %w", exec.Role(), err)
	}
	if strings.TrimSpace(output) == "" {
		return "", haltNone, fmt.Errorf("%s: %w: empty output", exec.Role(), agent.ErrUpstream)
	}
	if e.cfg.LogPayloads {
		log.Printf("[Orchestrator] %s output for run %s:\n%s", exec.Role(), chain.RunID, truncate(output, e.cfg.LogMaxChars))
	}

	halt, err := e.checkpoint(ctx, CheckpointAfterInvoke, chain)
	if err != nil || halt != haltNone {
		return "", halt, err
	}
	return output, haltNone, nil
}

// gatherInputs loads the idea, options and required artifacts of a run.
// Missing artifacts become empty text.
func (e *Engine) gatherInputs(ctx context.Context, runID string, required []string) (pipeline.Inputs, error) {
	in := pipeline.Inputs{Artifacts: make(map[string]string, len(required))}

	idea, err := e.client.GetIdea(ctx, runID)
	if err != nil && !runstore.IsNotFound(err) {
		return in, fmt.Errorf("failed to load idea: %w", err)
	}
	in.Idea = idea

	meta, err := e.client.GetRunMeta(ctx, runID)
	if err != nil && !runstore.IsNotFound(err) {
		return in, fmt.Errorf("failed to load run metadata: %w", err)
	}
	if meta != nil {
		in.MaxChars = meta.MaxChars
	}

	for _, name := range required {
		content, err := e.client.GetArtifact(ctx, runID, name)
		if err != nil && !runstore.IsNotFound(err) {
			return in, fmt.Errorf("failed to load artifact %s: %w", name, err)
		}
		in.Artifacts[name] = content
	}
	return in, nil
}

func (e *Engine) persist(ctx context.Context, runID string, stage pipeline.Stage, artifacts map[string]string) error {
	for _, name := range stage.Artifacts() {
		content, ok := artifacts[name]
		if !ok {
			continue
		}
		if err := e.client.SetArtifact(ctx, runID, name, content); err != nil {
			return fmt.Errorf("failed to store artifact %s: %w", name, err)
		}
	}
	return nil
}

// failStep marks stage and run failed, records the error and returns it wrapped.
// A chain that was cancelled or superseded while the stage ran leaves run state untouched.
func (e *Engine) failStep(ctx context.Context, chain Chain, stage pipeline.Stage, cause error) error {
	ctx = context.WithoutCancel(ctx)
	wrapped := fmt.Errorf("stage %s failed: %w", stage, cause)
	if e.discardFailure(ctx, chain, stage.String(), cause) {
		return wrapped
	}

	if err := e.client.SetStepStatus(ctx, chain.RunID, stage.String(), runstore.StepStatusFailed); err != nil {
		log.Printf("[Orchestrator] Failed to mark %s failed for run %s: %v", stage, chain.RunID, err)
	}
	e.failRun(ctx, chain.RunID, stage.String(), cause)
	return wrapped
}

// discardFailure re-reads the run before a failure is recorded. It reports true
// when the run no longer exists or the checkpoint halts the chain.
func (e *Engine) discardFailure(ctx context.Context, chain Chain, step string, cause error) bool {
	halt, err := e.checkpoint(ctx, CheckpointBeforeFail, chain)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			log.Printf("[Orchestrator] Discarding failure of %s for missing run %s: %v", step, chain.RunID, cause)
			return true
		}
		log.Printf("[Orchestrator] Recording failure of %s for run %s without state check: %v", step, chain.RunID, err)
		return false
	}
	if halt == haltNone {
		return false
	}
	log.Printf("[Orchestrator] Discarding failure of %s for run %s (%s): %v", step, chain.RunID, halt, cause)
	return true
}

func (e *Engine) failRun(ctx context.Context, runID, step string, cause error) {
	if err := e.client.SetRunStatus(ctx, runID, runstore.RunStatusFailed); err != nil {
		log.Printf("[Orchestrator] Failed to mark run %s failed: %v", runID, err)
	}
	failed := runstore.NewEvent(runstore.StepEventType(runstore.StepStatusFailed))
	failed.Step = step
	failed.Error = cause.Error()
	if err := e.emit(ctx, runID, failed); err != nil {
		log.Printf("[Orchestrator] %v", err)
	}
	e.metrics.RunFinished(string(runstore.RunStatusFailed))

	e.logEvent("step_failed", map[string]interface{}{
		"run_id": runID,
		"step":   step,
		"error":  cause.Error(),
	})
}

// Finalize joins the present stage artifacts into the final document and
// completes the run. It does nothing for cancelled runs and stale chains.
func (e *Engine) Finalize(ctx context.Context, chain Chain) error {
	ctx, span := e.tracer.Start(ctx, "orchestrator.finalize", trace.WithAttributes(
		attribute.String("run_id", chain.RunID),
	))
	defer span.End()

	halt, err := e.checkpoint(ctx, CheckpointBeforeFinalize, chain)
	if err != nil || halt != haltNone {
		return err
	}

	if err := e.finalize(ctx, chain.RunID); err != nil {
		span.RecordError(err)
		failCtx := context.WithoutCancel(ctx)
		if !e.discardFailure(failCtx, chain, "finalize", err) {
			e.failRun(failCtx, chain.RunID, "finalize", err)
		}
		return fmt.Errorf("finalize failed: %w", err)
	}
	return nil
}

func (e *Engine) finalize(ctx context.Context, runID string) error {
	var parts []string
	for _, name := range pipeline.CompositeOrder() {
		content, err := e.client.GetArtifact(ctx, runID, name)
		if err != nil {
			if runstore.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to load artifact %s: %w", name, err)
		}
		if strings.TrimSpace(content) != "" {
			parts = append(parts, content)
		}
	}

	if err := e.client.SetArtifact(ctx, runID, runstore.ArtifactFinal, strings.Join(parts, pipeline.CompositeSeparator)); err != nil {
		return fmt.Errorf("failed to store final document: %w", err)
	}
	if err := e.client.SetRunStatus(ctx, runID, runstore.RunStatusCompleted); err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	if err := e.emit(ctx, runID, runstore.NewEvent(runstore.EventRunCompleted)); err != nil {
		return err
	}
	e.metrics.RunFinished(string(runstore.RunStatusCompleted))

	log.Printf("[Orchestrator] Run %s completed (%d sections)", runID, len(parts))
	return nil
}

func (e *Engine) emit(ctx context.Context, runID string, event runstore.Event) error {
	if _, err := e.client.AppendEvent(ctx, runID, event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", event.Type, err)
	}
	return nil
}

// logEvent writes a structured JSON log line.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["namespace"] = e.client.Namespace()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... (%d more chars)", len(s)-max)
}

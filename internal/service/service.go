// Package service implements the run lifecycle operations offered to
// transports: create, status, regenerate, cancel, event streaming and export.
package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dyluth/teamflow/internal/export"
	"github.com/dyluth/teamflow/internal/hints"
	"github.com/dyluth/teamflow/internal/observability"
	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/internal/watch"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/google/uuid"
)

// Config holds service-level settings.
type Config struct {
	SummaryLimit int
}

// Service coordinates the run store, the engine and the scheduler.
type Service struct {
	client    *runstore.Client
	engine    *orchestrator.Engine
	scheduler orchestrator.Scheduler
	prompts   *pipeline.Prompts
	metrics   *observability.Metrics
	cfg       Config
	newID     func() string
}

// New creates a service.
func New(client *runstore.Client, engine *orchestrator.Engine, scheduler orchestrator.Scheduler, prompts *pipeline.Prompts, metrics *observability.Metrics, cfg Config) *Service {
	if prompts == nil {
		prompts = pipeline.NewPrompts("")
	}
	return &Service{
		client:    client,
		engine:    engine,
		scheduler: scheduler,
		prompts:   prompts,
		metrics:   metrics,
		cfg:       cfg,
		newID:     NewRunID,
	}
}

// NewRunID returns an opaque run identifier.
func NewRunID() string {
	return "run_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CreateOptions are the optional settings of a new run.
type CreateOptions struct {
	MaxChars int  `json:"max_chars,omitempty"`
	FastMode bool `json:"fast_mode,omitempty"`
}

// RunRef identifies a run and reports its status after an operation.
type RunRef struct {
	ID     string             `json:"id"`
	Status runstore.RunStatus `json:"status"`
	Step   string             `json:"step,omitempty"`
}

// Create validates the idea, records a queued run and schedules its chain.
func (s *Service) Create(ctx context.Context, idea string, opts CreateOptions) (RunRef, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return RunRef{}, fmt.Errorf("%w: idea must not be empty", ErrBadRequest)
	}
	if n := utf8.RuneCountInString(idea); n > hints.MaxIdeaLength {
		return RunRef{}, fmt.Errorf("%w: idea is %d characters, limit is %d", ErrBadRequest, n, hints.MaxIdeaLength)
	}
	if opts.MaxChars < 0 {
		return RunRef{}, fmt.Errorf("%w: max_chars must not be negative", ErrBadRequest)
	}

	runID := s.newID()
	if err := s.client.InitRun(ctx, runID, idea, s.engine.InitialSteps()); err != nil {
		return RunRef{}, err
	}

	explicit := opts.MaxChars
	if explicit > 0 {
		explicit = hints.Clamp(explicit)
	}
	meta := map[string]interface{}{}
	if maxChars := hints.ResolveMaxChars(idea, explicit, opts.FastMode); maxChars > 0 {
		meta["max_chars"] = strconv.Itoa(maxChars)
	}
	if opts.FastMode {
		meta["fast_mode"] = "true"
	}
	if err := s.client.SetRunMeta(ctx, runID, meta); err != nil {
		return RunRef{}, err
	}

	chain := orchestrator.Chain{RunID: runID, Start: pipeline.First, Generation: 1}
	if err := s.scheduler.Schedule(ctx, chain); err != nil {
		return RunRef{}, fmt.Errorf("failed to schedule run %s: %w", runID, err)
	}
	s.metrics.RunCreated()

	log.Printf("[Service] Created run %s (max_chars=%v fast_mode=%t)", runID, meta["max_chars"], opts.FastMode)
	return RunRef{ID: runID, Status: runstore.RunStatusQueued}, nil
}

// StepView is the status of one stage.
type StepView struct {
	Name   string              `json:"name"`
	Status runstore.StepStatus `json:"status"`
}

// RunView is the progress snapshot of a run.
type RunView struct {
	ID        string             `json:"id"`
	Status    runstore.RunStatus `json:"status"`
	Steps     []StepView         `json:"steps"`
	Artifacts map[string]bool    `json:"artifacts"`
	MaxChars  int                `json:"max_chars,omitempty"`
	FastMode  bool               `json:"fast_mode,omitempty"`
	CreatedAt int64              `json:"created_at"`
	UpdatedAt int64              `json:"updated_at,omitempty"`
}

// Status reports run status, every stage in canonical order and artifact presence.
func (s *Service) Status(ctx context.Context, runID string) (*RunView, error) {
	meta, err := s.client.GetRunMeta(ctx, runID)
	if err != nil {
		if runstore.IsNotFound(err) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil, err
	}

	statuses, err := s.client.GetStepStatuses(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps := make([]StepView, 0, len(pipeline.Stages()))
	for _, stage := range pipeline.Stages() {
		status, ok := statuses[stage.String()]
		if !ok || status == "" {
			status = runstore.StepStatusUnknown
		}
		steps = append(steps, StepView{Name: stage.String(), Status: status})
	}

	artifacts, err := s.client.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &RunView{
		ID:        runID,
		Status:    meta.Status,
		Steps:     steps,
		Artifacts: artifacts,
		MaxChars:  meta.MaxChars,
		FastMode:  meta.FastMode,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}, nil
}

// Regenerate re-runs stage and everything downstream of it.
func (s *Service) Regenerate(ctx context.Context, runID, stage string) (RunRef, error) {
	chain, err := s.engine.Regenerate(ctx, runID, stage)
	if err != nil {
		return RunRef{}, classify(err)
	}
	return RunRef{ID: runID, Status: runstore.RunStatusQueued, Step: chain.Start.String()}, nil
}

// Cancel stops a run cooperatively.
func (s *Service) Cancel(ctx context.Context, runID string) (RunRef, error) {
	exists, err := s.client.RunExists(ctx, runID)
	if err != nil {
		return RunRef{}, err
	}
	if !exists {
		return RunRef{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	status, err := s.engine.Cancel(ctx, runID)
	if err != nil {
		return RunRef{}, classify(err)
	}
	return RunRef{ID: runID, Status: status}, nil
}

// Stream delivers the run's events from the resolved offset, see watch.Stream.
func (s *Service) Stream(ctx context.Context, runID string, opts watch.Options, emit func(watch.Frame) error) error {
	exists, err := s.client.RunExists(ctx, runID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return watch.Stream(ctx, s.client, runID, opts, emit)
}

// Export renders a finalized run. Runs without a final document are a conflict.
func (s *Service) Export(ctx context.Context, runID, format string) (export.Document, error) {
	exists, err := s.client.RunExists(ctx, runID)
	if err != nil {
		return export.Document{}, err
	}
	if !exists {
		return export.Document{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	final, err := s.client.GetArtifact(ctx, runID, runstore.ArtifactFinal)
	if err != nil && !runstore.IsNotFound(err) {
		return export.Document{}, err
	}
	if strings.TrimSpace(final) == "" {
		return export.Document{}, fmt.Errorf("%w: run %s is not finalized", ErrConflict, runID)
	}

	f, err := export.ParseFormat(format)
	if err != nil {
		return export.Document{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	src := export.Source{Final: final, Artifacts: map[string]string{}}
	if f == export.FormatIDE || f == export.FormatSummary {
		for _, name := range pipeline.CompositeOrder() {
			content, err := s.client.GetArtifact(ctx, runID, name)
			if err != nil && !runstore.IsNotFound(err) {
				return export.Document{}, err
			}
			src.Artifacts[name] = content
		}
		if src.IDEPrompt, err = s.prompts.Load("ide_agent_prompt"); err != nil {
			return export.Document{}, err
		}
	}

	return export.Render(f, src, export.Options{SummaryLimit: s.cfg.SummaryLimit})
}

// Artifact returns one named artifact of a run. Names outside the artifact set
// are a bad request; a known name that has not been produced is not found.
func (s *Service) Artifact(ctx context.Context, runID, name string) (string, error) {
	if !slices.Contains(runstore.ArtifactNames(), name) {
		return "", fmt.Errorf("%w: unknown artifact %q (valid: %s)", ErrBadRequest, name,
			strings.Join(runstore.ArtifactNames(), ", "))
	}

	exists, err := s.client.RunExists(ctx, runID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	content, err := s.client.GetArtifact(ctx, runID, name)
	if err != nil {
		if runstore.IsNotFound(err) {
			return "", fmt.Errorf("%w: artifact %s of run %s has not been produced", ErrNotFound, name, runID)
		}
		return "", err
	}
	return content, nil
}

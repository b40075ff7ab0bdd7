package runstore

import (
	"fmt"
	"time"
)

// RunStatus defines the lifecycle state of a run.
// Runs move forward queued → running → completed/failed. Cancellation preempts
// any non-terminal status, and only regeneration re-opens a terminal run.
type RunStatus string

const (
	// RunStatusQueued indicates the run is waiting for a worker
	RunStatusQueued RunStatus = "queued"

	// RunStatusRunning indicates a worker is executing the run's stages
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the final composite document was produced
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates a stage failed and the run stopped
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled by a client
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusUnknown is reported when the metadata hash carries no status
	RunStatusUnknown RunStatus = "unknown"
)

// IsTerminal reports whether no further work is expected for a run in this status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Validate checks if the RunStatus is a valid enum value.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown run status: %q", s)
	}
}

// StepStatus defines the state of a single stage within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusQueued    StepStatus = "queued"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusFailed    StepStatus = "failed"
	StepStatusCancelled StepStatus = "cancelled"
	StepStatusUnknown   StepStatus = "unknown"
)

// Cancellable reports whether a cancel request should overwrite this status.
// The empty status stands for a stage missing from the hash.
func (s StepStatus) Cancellable() bool {
	switch s {
	case "", StepStatusPending, StepStatusQueued, StepStatusRunning, StepStatusUnknown:
		return true
	default:
		return false
	}
}

// Validate checks if the StepStatus is a valid enum value.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusQueued, StepStatusRunning, StepStatusCompleted,
		StepStatusSkipped, StepStatusFailed, StepStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown step status: %q", s)
	}
}

// Artifact names form a closed set. Every stage output and the final composite
// has a fixed name so clients can render progress from a presence map.
const (
	ArtifactPRD    = "prd"
	ArtifactArch   = "arch"
	ArtifactAPI    = "api"
	ArtifactTest   = "test"
	ArtifactRisk   = "risk"
	ArtifactStack  = "stack"
	ArtifactReview = "review"
	ArtifactFinal  = "final"
)

// ArtifactNames returns the closed set of artifact names in canonical order.
func ArtifactNames() []string {
	return []string{
		ArtifactPRD, ArtifactArch, ArtifactAPI, ArtifactTest,
		ArtifactRisk, ArtifactStack, ArtifactReview, ArtifactFinal,
	}
}

// RunMeta is the decoded content of a run's metadata hash.
type RunMeta struct {
	Status     RunStatus `json:"status"`
	CreatedAt  int64     `json:"created_at"`           // Unix seconds
	UpdatedAt  int64     `json:"updated_at,omitempty"` // Unix seconds, zero until first status change
	Generation int64     `json:"generation"`           // Bumped by every regeneration request
	MaxChars   int       `json:"max_chars,omitempty"`  // Output size hint, zero when unset
	FastMode   bool      `json:"fast_mode,omitempty"`

	// Extra holds any metadata fields this package does not model explicitly.
	Extra map[string]string `json:"extra,omitempty"`
}

// EventType identifies a run state-transition notification.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventRevisionStarted   EventType = "revision_started"
	EventRevisionCompleted EventType = "revision_completed"
	EventStepRegenerate    EventType = "step_regenerate"
	EventRunCancelled      EventType = "run_cancelled"
	EventRunCompleted      EventType = "run_completed"
)

// StepEventType returns the event type announcing that a stage reached status.
// Pattern: step_{status}
func StepEventType(status StepStatus) EventType {
	return EventType("step_" + string(status))
}

// Event is an immutable record appended to a run's event list.
type Event struct {
	Type      EventType `json:"type"`
	Step      string    `json:"step,omitempty"`
	StartStep string    `json:"start_step,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"` // Unix seconds
}

// NewEvent returns an event of the given type stamped with the current time.
func NewEvent(eventType EventType) Event {
	return Event{Type: eventType, Timestamp: time.Now().Unix()}
}

// EventRecord is an event together with its zero-based position in the run's log.
type EventRecord struct {
	ID    int64 `json:"id"`
	Event Event `json:"event"`
}

package orchestrator

import "errors"

var (
	// ErrRunNotFound is returned for operations on an unknown or expired run.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownStage is returned when a stage name does not resolve.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrStageDisabled is returned when regenerating a stage that configuration turned off.
	ErrStageDisabled = errors.New("stage is disabled")
)

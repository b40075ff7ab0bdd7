package service

import (
	"errors"
	"fmt"

	"github.com/dyluth/teamflow/internal/orchestrator"
)

// Error taxonomy exposed to transports.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
)

// classify maps engine errors onto the service taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orchestrator.ErrRunNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, orchestrator.ErrUnknownStage):
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	case errors.Is(err, orchestrator.ErrStageDisabled):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

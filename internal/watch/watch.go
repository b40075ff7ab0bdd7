// Package watch follows a run's progress by polling the run store: a
// resumable event stream with heartbeats and a terminal-status wait.
package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/teamflow/pkg/runstore"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxDuration  = 60 * time.Second
)

// EventSource reads a run's event log from an offset.
type EventSource interface {
	GetEvents(ctx context.Context, runID string, start int64) ([]runstore.EventRecord, error)
}

// StatusSource reads a run's status.
type StatusSource interface {
	GetRunStatus(ctx context.Context, runID string) (runstore.RunStatus, error)
}

// Frame is one unit of a stream: an event record or an idle heartbeat.
type Frame struct {
	Heartbeat bool
	Record    runstore.EventRecord
}

// Options controls a stream.
type Options struct {
	// Start is the first event index requested explicitly.
	Start int64
	// LastEventID is the last id the client acknowledged, if any.
	LastEventID string
	PollInterval time.Duration
	MaxDuration  time.Duration
	// StopOnTerminal ends the stream after an event that finishes the run.
	StopOnTerminal bool
}

// StartOffset resolves where a stream begins: the larger of start and one past
// the last acknowledged id. Unparseable ids are ignored and negatives clamp to 0.
func StartOffset(start int64, lastEventID string) int64 {
	if start < 0 {
		start = 0
	}
	if lastEventID = strings.TrimSpace(lastEventID); lastEventID != "" {
		if id, err := strconv.ParseInt(lastEventID, 10, 64); err == nil && id+1 > start {
			start = id + 1
		}
	}
	return start
}

// Stream polls the run's events and passes each new record to emit in order.
// Polls that find nothing emit a heartbeat. The stream ends after MaxDuration,
// when ctx is done, when emit fails, or after a terminal event if requested.
func Stream(ctx context.Context, source EventSource, runID string, opts Options, emit func(Frame) error) error {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	next := StartOffset(opts.Start, opts.LastEventID)
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	for {
		records, err := source.GetEvents(ctx, runID, next)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}

		if len(records) == 0 {
			if err := emit(Frame{Heartbeat: true}); err != nil {
				return err
			}
		}
		for _, record := range records {
			if err := emit(Frame{Record: record}); err != nil {
				return err
			}
			next = record.ID + 1
			if opts.StopOnTerminal && IsTerminalEvent(record.Event.Type) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-time.After(poll):
		}
	}
}

// IsTerminalEvent reports whether an event ends a run's current chain.
func IsTerminalEvent(t runstore.EventType) bool {
	switch t {
	case runstore.EventRunCompleted, runstore.EventRunCancelled, runstore.EventStepFailed:
		return true
	default:
		return false
	}
}

// PollForTerminal polls a run until it reaches a terminal status.
// Returns the status or an error if timeout occurs.
func PollForTerminal(ctx context.Context, source StatusSource, runID string, interval, timeout time.Duration) (runstore.RunStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-timeoutCh:
			return "", fmt.Errorf("timeout waiting for run %s after %v", runID, timeout)

		case <-ticker.C:
			status, err := source.GetRunStatus(ctx, runID)
			if err != nil {
				if runstore.IsNotFound(err) {
					return "", fmt.Errorf("run %s not found", runID)
				}
				return "", fmt.Errorf("failed to query run status: %w", err)
			}
			if status.IsTerminal() {
				return status, nil
			}
		}
	}
}

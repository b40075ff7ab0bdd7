// Package agent provides the content-generation capability used by pipeline
// stages: given a role and a rendered prompt, produce text.
package agent

import (
	"context"
	"errors"
)

// ErrUpstream marks failures of the generation agent itself: a failed or
// timed-out invocation, exhausted retries, or empty output.
var ErrUpstream = errors.New("upstream agent failure")

// Agent generates text for a rendered prompt on behalf of a stage role.
type Agent interface {
	Generate(ctx context.Context, role, prompt string) (string, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, role, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, role, prompt string) (string, error) {
	return f(ctx, role, prompt)
}

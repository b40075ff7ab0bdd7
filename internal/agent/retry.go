package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingAgent retries a wrapped agent with exponential backoff.
// Context cancellation is never retried.
type RetryingAgent struct {
	Agent           Agent
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRetryingAgent wraps agent with maxRetries retries.
func NewRetryingAgent(agent Agent, maxRetries uint64) *RetryingAgent {
	return &RetryingAgent{
		Agent:           agent,
		MaxRetries:      maxRetries,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Generate invokes the wrapped agent until it returns non-empty text, the
// retries are exhausted, or ctx is done.
func (r *RetryingAgent) Generate(ctx context.Context, role, prompt string) (string, error) {
	var output string
	attempt := 0

	operation := func() error {
		attempt++
		out, err := r.Agent.Generate(ctx, role, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("%w: empty output", ErrUpstream)
		}
		output = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("[Agent] %s attempt %d failed, retrying in %s: %v", role, attempt, wait, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(r.policy(), ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if errors.Is(err, ErrUpstream) {
			return "", fmt.Errorf("%s failed after %d attempts: %w", role, attempt, err)
		}
		return "", fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUpstream, role, attempt, err)
	}
	return output, nil
}

func (r *RetryingAgent) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, r.MaxRetries)
}

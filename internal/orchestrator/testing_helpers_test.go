package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type agentCall struct {
	Role   string
	Prompt string
}

// scriptedAgent returns canned stage output and records every call.
// respond, when set, overrides the canned output.
type scriptedAgent struct {
	mu      sync.Mutex
	calls   []agentCall
	respond func(call agentCall, n int) (string, error)
}

func (a *scriptedAgent) Generate(ctx context.Context, role, prompt string) (string, error) {
	a.mu.Lock()
	call := agentCall{Role: role, Prompt: prompt}
	a.calls = append(a.calls, call)
	n := len(a.calls)
	respond := a.respond
	a.mu.Unlock()

	if respond != nil {
		return respond(call, n)
	}
	return cannedOutput(call, n), nil
}

func (a *scriptedAgent) Calls() []agentCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agentCall(nil), a.calls...)
}

func (a *scriptedAgent) Roles() []string {
	var roles []string
	for _, c := range a.Calls() {
		roles = append(roles, c.Role)
	}
	return roles
}

func cannedOutput(call agentCall, n int) string {
	switch call.Role {
	case "Product Manager":
		return "# Product Requirements (PRD)\nprd body"
	case "Tech Lead":
		if strings.Contains(call.Prompt, "revising") {
			return fmt.Sprintf("# System Architecture\narch revised call %d\n# API Design\napi revised call %d", n, n)
		}
		return "# System Architecture\narch body\n# API Design\napi body"
	case "QA Engineer":
		return "# Test Plan\ntest body\n# Risk Analysis\nrisk body"
	case "Principal Engineer":
		return "# Tech Stack Recommendation\nstack body"
	case "Reviewer":
		return "# Review Notes\nreview body"
	}
	return "unexpected role " + call.Role
}

type recordingScheduler struct {
	mu     sync.Mutex
	chains []Chain
}

func (s *recordingScheduler) Schedule(ctx context.Context, chain Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains = append(s.chains, chain)
	return nil
}

func (s *recordingScheduler) Chains() []Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chain(nil), s.chains...)
}

type testEnv struct {
	engine    *Engine
	client    *runstore.Client
	agent     *scriptedAgent
	scheduler *recordingScheduler
	mr        *miniredis.Miniredis
}

// setupTestEngine creates an engine backed by miniredis with a scripted agent.
func setupTestEngine(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	namespace := "test-" + uuid.New().String()[:8]
	client, err := runstore.NewClient(&redis.Options{Addr: mr.Addr()}, namespace, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ag := &scriptedAgent{}
	sched := &recordingScheduler{}
	engine := NewEngine(client, ag, nil, sched, cfg, opts...)

	return &testEnv{engine: engine, client: client, agent: ag, scheduler: sched, mr: mr}
}

// createRun initialises a run the way the service layer does.
func (env *testEnv) createRun(t *testing.T, runID, idea string) Chain {
	t.Helper()
	require.NoError(t, env.client.InitRun(context.Background(), runID, idea, env.engine.InitialSteps()))
	return Chain{RunID: runID, Start: pipeline.First, Generation: 1}
}

// runChain executes then finalizes a chain, as the worker pool does.
func (env *testEnv) runChain(t *testing.T, chain Chain) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.engine.Execute(ctx, chain))
	require.NoError(t, env.engine.Finalize(ctx, chain))
}

func (env *testEnv) steps(t *testing.T, runID string) map[string]runstore.StepStatus {
	t.Helper()
	steps, err := env.client.GetStepStatuses(context.Background(), runID)
	require.NoError(t, err)
	return steps
}

func (env *testEnv) eventTypes(t *testing.T, runID string) []string {
	t.Helper()
	records, err := env.client.GetEvents(context.Background(), runID, 0)
	require.NoError(t, err)
	var types []string
	for i, r := range records {
		require.Equal(t, int64(i), r.ID, "event ids must be contiguous")
		label := string(r.Event.Type)
		if r.Event.Step != "" {
			label += ":" + r.Event.Step
		}
		types = append(types, label)
	}
	return types
}

func (env *testEnv) artifact(t *testing.T, runID, name string) (string, bool) {
	t.Helper()
	content, err := env.client.GetArtifact(context.Background(), runID, name)
	if runstore.IsNotFound(err) {
		return "", false
	}
	require.NoError(t, err)
	return content, true
}

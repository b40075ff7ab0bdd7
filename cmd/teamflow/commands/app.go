package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dyluth/teamflow/internal/agent"
	"github.com/dyluth/teamflow/internal/config"
	"github.com/dyluth/teamflow/internal/observability"
	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/dyluth/teamflow/internal/queue"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg       *config.Config
	client    *runstore.Client
	metrics   *observability.Metrics
	engine    *orchestrator.Engine
	scheduler *queue.RedisScheduler
	prompts   *pipeline.Prompts
	service   *service.Service
}

// loadConfig reads --config, or ./teamflow.yml when it exists, or falls back
// to defaults plus environment overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			return config.FromEnv()
		}
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, printer.Error(
				"config file not found",
				fmt.Sprintf("No configuration at %s.", path),
				"Create teamflow.yml or omit --config to use defaults",
			)
		}
		return nil, printer.Error("invalid configuration", err.Error())
	}
	return cfg, nil
}

// newApp connects to Redis and wires the engine. requireAgent rejects configs
// without agent.command, which only processes that execute chains need.
func newApp(ctx context.Context, requireAgent bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ag, err := buildAgent(cfg)
	if err != nil {
		if requireAgent {
			return nil, printer.Error(
				"no agent configured",
				"Executing runs needs a generation command.",
				"Set agent.command in teamflow.yml, e.g. command: [\"./generate.sh\"]",
			)
		}
		ag = agent.Func(func(ctx context.Context, role, prompt string) (string, error) {
			return "", fmt.Errorf("%w: %v", agent.ErrUpstream, err)
		})
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client, err := runstore.NewClient(redisOpts, cfg.Redis.Namespace, cfg.TTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create run store client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s: %v", cfg.Redis.URL, err),
			"Start Redis, e.g. docker run -p 6379:6379 redis:7-alpine",
			"Point redis.url or REDIS_URL at a reachable server",
		)
	}

	metrics := observability.NewMetrics()
	prompts := pipeline.NewPrompts(cfg.Pipeline.PromptDir)
	scheduler := queue.NewRedisScheduler(client)
	engine := orchestrator.NewEngine(client, ag, prompts, scheduler, cfg.OrchestratorConfig(),
		orchestrator.WithMetrics(metrics))

	return &app{
		cfg:       cfg,
		client:    client,
		metrics:   metrics,
		engine:    engine,
		scheduler: scheduler,
		prompts:   prompts,
		service:   service.New(client, engine, scheduler, prompts, metrics, cfg.ServiceConfig()),
	}, nil
}

func buildAgent(cfg *config.Config) (agent.Agent, error) {
	cmdAgent, err := agent.NewCommandAgent(cfg.Agent.Command)
	if err != nil {
		return nil, err
	}
	cmdAgent.Dir = cfg.Agent.Dir
	cmdAgent.Timeout = cfg.AgentTimeout()
	return agent.NewRetryingAgent(cmdAgent, uint64(*cfg.Agent.MaxRetries)), nil
}

func (a *app) Close() error {
	return a.client.Close()
}

func (a *app) newPool() *queue.Pool {
	return queue.NewPool(a.client, a.engine, a.cfg.PoolConfig(), a.metrics)
}

// serviceError renders a service error with a hint matching its class.
func serviceError(err error, runID string) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return printer.Error(
			"not found",
			err.Error(),
			fmt.Sprintf("Runs expire after redis.ttl_seconds; check with:\n  teamflow status %s", runID),
		)
	case errors.Is(err, service.ErrBadRequest):
		return printer.Error("invalid request", err.Error())
	case errors.Is(err, service.ErrConflict):
		return printer.Error("conflict", err.Error())
	default:
		return err
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/koopa0/sage/db"
	"github.com/koopa0/sage/internal/chat"
	"github.com/koopa0/sage/internal/config"
	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/knowledge"
	"github.com/koopa0/sage/internal/llm"
	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/observability"
	"github.com/koopa0/sage/internal/session"
	"github.com/koopa0/sage/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so the
	// TracerProvider exports model spans.
	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	idx, err := provideIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx

	registry, err := provideTools(g, idx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Tools = registry

	a.SessionStore = session.NewStore(pool, logger)
	a.Locks = session.NewLocks()

	agent, err := provideAgent(g, cfg, a, logger)
	if err != nil {
		return nil, err
	}
	a.Agent = agent

	return a, nil
}

// provideOtelShutdown sets up OTLP trace export. Returns a cleanup
// that flushes pending spans with its own deadline.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := observability.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Warn("setting up tracing", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideIndex loads the knowledge directory and builds the lexical
// index. An empty directory is valid; a missing one is not.
func provideIndex(cfg *config.Config, logger log.Logger) (*index.Manager, error) {
	loader := knowledge.NewLoader(cfg.KnowledgeDir, logger)
	manager, err := index.NewManager(loader, logger)
	if err != nil {
		return nil, fmt.Errorf("building knowledge index: %w", err)
	}
	return manager, nil
}

// provideTools builds the tool registry and registers the knowledge
// search tool with both the registry and Genkit.
func provideTools(g *genkit.Genkit, idx *index.Manager, cfg *config.Config, logger log.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(g, logger)

	kb, err := tools.NewKB(idx, cfg.TopK, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge tool: %w", err)
	}
	if _, err := tools.RegisterKB(g, registry, kb); err != nil {
		return nil, fmt.Errorf("registering knowledge tool: %w", err)
	}

	return registry, nil
}

// provideAgent wires the chat orchestrator over the model gateway,
// session store, and tool registry.
func provideAgent(g *genkit.Genkit, cfg *config.Config, a *App, logger log.Logger) (*chat.Agent, error) {
	client, err := llm.NewClient(g, cfg.FullModelName(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	agent, err := chat.New(chat.Config{
		Gateway:        client,
		Store:          a.SessionStore,
		Locks:          a.Locks,
		Tools:          a.Tools,
		Logger:         logger,
		MaxRoundTrips:  cfg.MaxRoundTrips,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Retry: chat.RetryConfig{
			MaxRetries:        cfg.MaxRetries,
			InitialInterval:   500 * time.Millisecond,
			MaxInterval:       10 * time.Second,
			RateLimitInterval: 2 * time.Second,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Budget: chat.TokenBudget{
			MaxHistoryTokens:   cfg.MaxHistoryTokens,
			MaxHistoryMessages: cfg.MaxHistoryMessages,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}
	return agent, nil
}

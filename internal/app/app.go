// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the engine: Genkit, the database
// pool, the knowledge index, the tool registry, and the chat agent.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/sage/internal/chat"
	"github.com/koopa0/sage/internal/config"
	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
	"github.com/koopa0/sage/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	DBPool       *pgxpool.Pool
	Index        *index.Manager
	Tools        *tools.Registry
	SessionStore *session.Store
	Locks        *session.Locks
	Agent        *chat.Agent

	otelCleanup func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}

	// Flushes pending spans; runs last so shutdown itself is traced.
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

// Package app provides application initialization and dependency
// wiring. App is the container that holds every long-lived component:
// the database pool, Genkit, the model client, the stores, and the
// chat flow.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikolang/niko/internal/chat"
	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/inference"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
	"github.com/nikolang/niko/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	DBPool       *pgxpool.Pool
	SessionStore *session.Store
	Sink         *notion.Sink
	Prefs        *config.PrefsStore
	Inference    *inference.Client
	Orchestrator *chat.Orchestrator
	Flow         *chat.Flow

	dbCleanup   func()
	otelCleanup func()
}

// Close gracefully shuts down all resources. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"entityql/internal/config"
	"entityql/internal/dbexec"
	"entityql/internal/filters"
	"entityql/internal/logging"
	"entityql/internal/observability"
	"entityql/internal/planner"
	"entityql/internal/resolver"
	"entityql/internal/schemarefresh"
)

// App owns runtime resources for the entityql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	databaseSource    string
	dsnPresent        bool

	registerFilters func(*filters.Registry) error
	registerFields  func(*resolver.SchemaBuilder) error

	meterProvider  *observability.MeterProvider
	metrics        appMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	limits        planner.PlanLimits
	queryExecutor dbexec.QueryExecutor

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	graphqlHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// appMetrics groups the instruments created when metrics are enabled. Every
// field is nil otherwise.
type appMetrics struct {
	graphql *observability.GraphQLMetrics
	planner *observability.PlannerMetrics
	auth    *observability.AuthMetrics
	refresh *observability.RefreshMetrics
}

// Option customizes an App.
type Option func(*App)

// WithFilterRegistration registers host row filters on every schema snapshot.
// Snapshots are rebuilt when the database structure changes, so fn may run
// more than once.
func WithFilterRegistration(fn func(*filters.Registry) error) Option {
	return func(a *App) { a.registerFilters = fn }
}

// WithFieldRegistration replaces the automatic root fields with the ones fn
// adds.
func WithFieldRegistration(fn func(*resolver.SchemaBuilder) error) Option {
	return func(a *App) { a.registerFields = fn }
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, databaseSource, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	app := &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		databaseSource:    databaseSource,
		dsnPresent:        strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}
	for _, opt := range opts {
		opt(app)
	}
	return app, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

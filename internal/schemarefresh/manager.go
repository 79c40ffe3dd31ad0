// Package schemarefresh builds schema snapshots from database introspection
// and swaps them in when the database structure changes.
package schemarefresh

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"entityql/internal/introspection"
	"entityql/internal/logging"
	"entityql/internal/model"
	"entityql/internal/observability"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// Snapshot is an immutable view of one schema generation.
type Snapshot struct {
	Model       *model.Model
	Schema      *graphql.Schema
	Handler     http.Handler
	DBSchema    *introspection.Schema
	BuiltAt     time.Time
	Fingerprint string
	// FingerprintComponents holds per-component hashes for change logs.
	FingerprintComponents map[string]string
}

// IntrospectFunc reads the database structure.
type IntrospectFunc func(ctx context.Context, queryer introspection.Queryer, databaseName string) (*introspection.Schema, error)

// Config controls schema refresh behavior.
type Config struct {
	DB           *sql.DB
	DatabaseName string
	Logger       *logging.Logger
	Metrics      *observability.RefreshMetrics
	// MinInterval and MaxInterval bound polling. Zero MinInterval disables
	// the background loop.
	MinInterval time.Duration
	MaxInterval time.Duration
	GraphiQL    bool
	Build       BuildSchemaConfig
	// Introspect defaults to introspection.IntrospectDatabaseContext.
	Introspect IntrospectFunc
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	db           *sql.DB
	databaseName string
	logger       *logging.Logger
	metrics      *observability.RefreshMetrics
	minInterval  time.Duration
	maxInterval  time.Duration
	graphiQL     bool
	build        BuildSchemaConfig
	introspect   IntrospectFunc
	active       atomic.Pointer[Snapshot]
	refreshMu    sync.Mutex
	wg           sync.WaitGroup
}

// NewManager builds the initial snapshot and returns a manager.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("schema refresh manager requires a database handle")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m := newManager(cfg)
	start := time.Now()
	fingerprint, err := m.computeFingerprintDetails(ctx)
	if err != nil {
		m.logger.Warn("failed to compute schema fingerprint", slog.String("error", err.Error()))
	}

	snapshot, err := m.buildSnapshot(ctx, fingerprint)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "startup", fingerprint.Mode)
		return nil, err
	}
	m.active.Store(snapshot)
	m.recordRefresh(time.Since(start), true, "startup", fingerprint.Mode)
	return m, nil
}

func newManager(cfg Config) *Manager {
	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	introspect := cfg.Introspect
	if introspect == nil {
		introspect = func(ctx context.Context, q introspection.Queryer, name string) (*introspection.Schema, error) {
			return introspection.IntrospectDatabaseContext(ctx, q, name)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Manager{
		db:           cfg.DB,
		databaseName: cfg.DatabaseName,
		logger:       logger.WithFields(slog.String("component", "schema_refresh")),
		metrics:      cfg.Metrics,
		minInterval:  minInterval,
		maxInterval:  maxInterval,
		graphiQL:     cfg.GraphiQL,
		build:        cfg.Build,
		introspect:   introspect,
	}
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Handler returns the HTTP handler of the current snapshot.
func (m *Manager) Handler() http.Handler {
	snapshot := m.CurrentSnapshot()
	if snapshot == nil || snapshot.Handler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
		})
	}
	return snapshot.Handler
}

// ServeHTTP dispatches to the current snapshot so a refresh is picked up by
// the next request.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}

// CurrentSnapshot returns the active snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// RefreshNowContext forces a rebuild and swap.
func (m *Manager) RefreshNowContext(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	fingerprint, err := m.computeFingerprintDetails(ctx)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "manual", fingerprint.Mode)
		return err
	}

	snapshot, err := m.buildSnapshot(ctx, fingerprint)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "manual", fingerprint.Mode)
		return err
	}

	m.active.Store(snapshot)
	m.recordRefresh(time.Since(start), true, "manual", fingerprint.Mode)
	return nil
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	fingerprint, err := m.computeFingerprintDetails(ctx)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		m.recordRefresh(time.Since(start), false, "poll", fingerprint.Mode)
		*interval = m.minInterval
		return
	}

	current := m.CurrentSnapshot()
	if current != nil && fingerprint.Value == current.Fingerprint {
		m.recordRefresh(time.Since(start), true, "poll_no_change", fingerprint.Mode)
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}

	var previous map[string]string
	if current != nil {
		previous = current.FingerprintComponents
	}
	m.logger.Info("schema change detected, rebuilding",
		slog.String("fingerprint", fingerprint.Value),
		slog.String("fingerprint_mode", fingerprint.Mode),
		slog.Any("changed_components", changedFingerprintComponents(previous, fingerprint.Components)),
	)
	snapshot, err := m.buildSnapshot(ctx, fingerprint)
	if err != nil {
		m.logger.Error("failed to rebuild schema", slog.String("error", err.Error()))
		m.recordRefresh(time.Since(start), false, "poll", fingerprint.Mode)
		*interval = m.minInterval
		return
	}

	m.active.Store(snapshot)
	*interval = m.minInterval
	m.recordRefresh(time.Since(start), true, "poll", fingerprint.Mode)
	m.logger.Info("schema refresh complete", slog.String("fingerprint", snapshot.Fingerprint))
}

func (m *Manager) buildSnapshot(ctx context.Context, fingerprint fingerprintDetails) (*Snapshot, error) {
	start := time.Now()

	m.logger.Info("introspecting database schema")
	dbSchema, err := m.introspect(ctx, m.db, m.databaseName)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database: %w", err)
	}
	m.logger.Info("discovered tables", slog.Int("count", len(dbSchema.Tables)))
	for _, table := range dbSchema.Tables {
		m.logger.Debug("table discovered",
			slog.String("table", table.Name),
			slog.Int("columns", len(table.Columns)),
			slog.Int("foreign_keys", len(table.ForeignKeys)),
		)
	}

	result, err := BuildSchema(ctx, dbSchema, m.build)
	if err != nil {
		return nil, err
	}
	schema := result.GraphQLSchema

	graphqlHandler := handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: m.graphiQL,
	})

	m.logger.Info("schema snapshot built",
		slog.Int("entity_types", len(result.Model.Types())),
		slog.Duration("duration", time.Since(start)),
	)

	return &Snapshot{
		Model:                 result.Model,
		Schema:                &schema,
		Handler:               graphqlHandler,
		DBSchema:              dbSchema,
		BuiltAt:               time.Now(),
		Fingerprint:           fingerprint.Value,
		FingerprintComponents: fingerprint.Components,
	}, nil
}

func (m *Manager) recordRefresh(duration time.Duration, success bool, trigger, fingerprintMode string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(context.Background(), duration, success, trigger, defaultOrUnknownMode(fingerprintMode))
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

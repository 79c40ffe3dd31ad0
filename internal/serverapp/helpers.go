package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"entityql/internal/config"
	"entityql/internal/dbexec"
	"entityql/internal/filters"
	"entityql/internal/logging"
	"entityql/internal/middleware"
	"entityql/internal/observability"
	"entityql/internal/planner"
	"entityql/internal/resolver"
	"entityql/internal/schemarefresh"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitLogger builds the process logger. With log exports enabled the logger
// also writes to the OTLP logger provider, which the caller must shut down.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, appMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, appMetrics{}, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, appMetrics{}, err
	}

	var metrics appMetrics
	if metrics.graphql, err = observability.InitGraphQLMetrics(); err != nil {
		return nil, appMetrics{}, err
	}
	if metrics.planner, err = observability.InitPlannerMetrics(); err != nil {
		return nil, appMetrics{}, err
	}
	if metrics.auth, err = observability.InitAuthMetrics(); err != nil {
		return nil, appMetrics{}, err
	}
	if metrics.refresh, err = observability.InitRefreshMetrics(); err != nil {
		return nil, appMetrics{}, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(observabilityConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn := cfg.Database.DSN()
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	sqlCommenter := cfg.Observability.SQLCommenterEnabled && cfg.Observability.TracingEnabled
	if sqlCommenter {
		opts = append(opts, otelsql.WithSQLCommenter(true))
		logger.Info("SQLCommenter enabled - trace context will be injected into SQL queries")
	} else if cfg.Observability.SQLCommenterEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			dbStatsReg = nil
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
		slog.Bool("sqlcommenter", sqlCommenter),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, databaseSource string, dsnPresent bool) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.String("database_source", databaseSource),
		slog.Bool("dsn_present", dsnPresent),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers. A zero connection
// timeout tries exactly once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildPlanLimits(cfg *config.Config) planner.PlanLimits {
	return planner.PlanLimits{
		MaxDepth:      cfg.Server.MaxDepth,
		MaxStatements: cfg.Server.MaxStatements,
	}
}

type schemaManagerParams struct {
	cfg             *config.Config
	logger          *logging.Logger
	db              *sql.DB
	databaseName    string
	executor        dbexec.QueryExecutor
	limits          planner.PlanLimits
	metrics         appMetrics
	registerFilters func(*filters.Registry) error
	registerFields  func(*resolver.SchemaBuilder) error
}

func startSchemaManager(ctx context.Context, p schemaManagerParams) (*schemarefresh.Manager, context.CancelFunc, error) {
	// A nil *PlannerMetrics must not become a non-nil Recorder.
	var recorder planner.Recorder
	if p.metrics.planner != nil {
		recorder = p.metrics.planner
	}

	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		DB:           p.db,
		DatabaseName: p.databaseName,
		Logger:       p.logger,
		Metrics:      p.metrics.refresh,
		MinInterval:  p.cfg.Server.SchemaRefreshMinInterval,
		MaxInterval:  p.cfg.Server.SchemaRefreshMaxInterval,
		GraphiQL:     p.cfg.Server.GraphiQLEnabled,
		Build: schemarefresh.BuildSchemaConfig{
			Executor:        p.executor,
			Model:           p.cfg.Model,
			Limits:          p.limits,
			MaxPageSize:     p.cfg.Server.MaxPageSize,
			Recorder:        recorder,
			RegisterFilters: p.registerFilters,
			RegisterFields:  p.registerFields,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)

	return manager, schemaCancel, nil
}

// authMiddleware returns the configured authentication layer, or nil when
// neither OIDC nor a shared secret is configured.
func authMiddleware(cfg *config.Config, logger *logging.Logger, metrics *observability.AuthMetrics) (func(http.Handler) http.Handler, string, error) {
	auth := cfg.Server.Auth
	if auth.OIDCEnabled {
		mw, err := middleware.OIDCAuthMiddleware(middleware.OIDCAuthConfig{
			Enabled:   true,
			IssuerURL: auth.OIDCIssuerURL,
			Audience:  auth.OIDCAudience,
			ClockSkew: auth.OIDCClockSkew,
			CAFile:    auth.OIDCCAFile,
		}, logger, metrics)
		return mw, "oidc", err
	}
	if strings.TrimSpace(auth.JWTSecret) != "" {
		mw, err := middleware.SharedSecretAuthMiddleware(middleware.SharedSecretAuthConfig{
			Secret:    auth.JWTSecret,
			Issuer:    auth.JWTIssuer,
			Audience:  auth.JWTAudience,
			ClockSkew: auth.OIDCClockSkew,
			Optional:  auth.JWTOptional,
		}, metrics)
		return mw, "hs256", err
	}
	return nil, "", nil
}

// buildGraphQLHandler assembles the /graphql chain:
//
//	logging -> auth -> session -> request analysis -> tracing -> metrics -> schema snapshot
//
// Auth must run before the session so rejected requests never take a
// connection from the pool.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, db *sql.DB, schemaHandler http.Handler, metrics appMetrics) (http.Handler, error) {
	handler := schemaHandler
	if cfg.Observability.MetricsEnabled && metrics.graphql != nil {
		handler = middleware.GraphQLMetricsMiddleware(metrics.graphql)(handler)
		logger.Info("GraphQL metrics middleware enabled")
	}
	handler = middleware.GraphQLTracingMiddleware()(handler)
	handler = middleware.GraphQLRequestMiddleware()(handler)
	handler = middleware.SessionMiddleware(db)(handler)

	auth, method, err := authMiddleware(cfg, logger, metrics.auth)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		handler = auth(handler)
		logger.Info("auth middleware enabled", slog.String("method", method))
	}

	return middleware.LoggingMiddleware(logger)(handler), nil
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, refresher schemaRefresher, metrics appMetrics) (http.Handler, error) {
	var handler http.Handler = http.HandlerFunc(schemaReloadHandler(refresher))

	auth, method, err := authMiddleware(cfg, logger, metrics.auth)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		handler = auth(handler)
		logger.Info("admin endpoints require authentication", slog.String("method", method))
	} else if cfg.Server.Admin.SchemaReloadEnabled {
		logger.Warn("admin endpoints are not authenticated - consider enabling OIDC or shared-secret authentication")
	}
	return middleware.LoggingMiddleware(logger)(handler), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Server.Admin.SchemaReloadEnabled && adminHandler != nil {
		mux.Handle("/admin/reload-schema", adminHandler)
		logger.Info("admin endpoint enabled", slog.String("path", "/admin/reload-schema"))
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		return handler
	}
	logger.Info("HTTP instrumentation enabled")
	return otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return httpRootSpanName(r)
		}),
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", "/admin/reload-schema":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Int("max_depth", cfg.Server.MaxDepth),
			slog.Int("max_page_size", cfg.Server.MaxPageSize),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if db == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body so internal details do not leak.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

type schemaRefresher interface {
	RefreshNowContext(ctx context.Context) error
}

func schemaReloadHandler(refresher schemaRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		authCtx, authenticated := middleware.AuthFromContext(r.Context())
		logAttrs := []any{
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("authenticated_user", authCtx.Subject),
				slog.String("issuer", authCtx.Issuer),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		refreshCtx, refreshCancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer refreshCancel()

		if err := refresher.RefreshNowContext(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		reqLogger.Info("schema reloaded successfully", logAttrs...)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}

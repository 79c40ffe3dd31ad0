package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"entityql/internal/model"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	validateModel(result, c.Model)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.ConnectionString) == "" {
		if d.Port < 1 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
		if strings.TrimSpace(d.Host) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.host",
				Message: "host is required when database.dsn is not set",
			})
		}
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
		})
	}

	if (t.CertFile != "") != (t.KeyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}

	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	for field, value := range map[string]int{
		"server.max_page_size":  s.MaxPageSize,
		"server.max_depth":      s.MaxDepth,
		"server.max_statements": s.MaxStatements,
	} {
		if value < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s cannot be negative", field[len("server."):]),
			})
		}
	}

	if s.SchemaRefreshMinInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.schema_refresh_min_interval",
			Message: "schema_refresh_min_interval cannot be negative",
		})
	}
	if s.SchemaRefreshMinInterval > 0 && s.SchemaRefreshMaxInterval < s.SchemaRefreshMinInterval {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.schema_refresh_max_interval",
			Message: "schema_refresh_max_interval must be at least schema_refresh_min_interval",
		})
	}

	if s.Admin.SchemaReloadEnabled && !s.Auth.OIDCEnabled && strings.TrimSpace(s.Auth.JWTSecret) == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.admin.schema_reload_enabled",
			Message: "admin endpoints are enabled without authentication",
		})
	}

	s.Auth.validate(result)
}

func (a *AuthConfig) validate(result *ValidationResult) {
	jwtEnabled := strings.TrimSpace(a.JWTSecret) != ""

	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.auth.oidc_issuer_url",
				Message: "issuer URL is required when OIDC is enabled",
			})
		} else if !strings.HasPrefix(a.OIDCIssuerURL, "https://") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.auth.oidc_issuer_url",
				Message: "issuer URL must use https",
			})
		}
		if a.OIDCAudience == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.auth.oidc_audience",
				Message: "audience is required when OIDC is enabled",
			})
		}
		if jwtEnabled {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.auth.jwt_secret",
				Message: "OIDC and shared-secret authentication cannot both be enabled",
				Hint:    "unset server.auth.jwt_secret or disable OIDC",
			})
		}
	}

	if jwtEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.auth.jwt_secret",
			Message: "shared-secret authentication is enabled",
			Hint:    "use OIDC in production",
		})
	} else if a.JWTOptional || a.JWTIssuer != "" || a.JWTAudience != "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.auth.jwt_secret",
			Message: "JWT settings are set but no shared secret is configured",
			Hint:    "set server.auth.jwt_secret or server.auth.jwt_secret_file",
		})
	}
}

var pascalCaseTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func validateModel(result *ValidationResult, cfg model.Config) {
	tables := make(map[string]bool, len(cfg.Hierarchies))
	for i, h := range cfg.Hierarchies {
		field := fmt.Sprintf("model.hierarchies[%d]", i)
		if strings.TrimSpace(h.Table) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".table",
				Message: "table cannot be empty",
			})
		} else if tables[h.Table] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".table",
				Message: fmt.Sprintf("table %q is mapped by more than one hierarchy", h.Table),
			})
		}
		tables[h.Table] = true

		if strings.TrimSpace(h.Discriminator) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".discriminator",
				Message: "discriminator column cannot be empty",
			})
		}
		if len(h.Types) == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   field + ".types",
				Message: fmt.Sprintf("hierarchy for table %q declares no derived types", h.Table),
			})
		}

		values := make(map[string]string, len(h.Types)+1)
		if !h.Abstract && h.Value != "" {
			values[h.Value] = "root"
		}
		names := make(map[string]bool, len(h.Types))
		for j, dt := range h.Types {
			typeField := fmt.Sprintf("%s.types[%d]", field, j)
			if !pascalCaseTypePattern.MatchString(dt.Name) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   typeField + ".name",
					Message: fmt.Sprintf("type name %q must be PascalCase", dt.Name),
				})
			}
			if names[dt.Name] {
				result.Errors = append(result.Errors, ValidationError{
					Field:   typeField + ".name",
					Message: fmt.Sprintf("type %q is declared twice", dt.Name),
				})
			}
			names[dt.Name] = true

			if dt.Abstract {
				continue
			}
			if dt.Value == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   typeField + ".value",
					Message: fmt.Sprintf("concrete type %q needs a discriminator value", dt.Name),
				})
				continue
			}
			if other, ok := values[dt.Value]; ok {
				result.Errors = append(result.Errors, ValidationError{
					Field:   typeField + ".value",
					Message: fmt.Sprintf("discriminator value %q is already used by %s", dt.Value, other),
				})
			}
			values[dt.Value] = dt.Name
		}
	}

	for table, columns := range cfg.ComputedColumns {
		if strings.TrimSpace(table) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "model.computed_columns",
				Message: "table name cannot be empty",
			})
		}
		for _, column := range columns {
			if strings.TrimSpace(column) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "model.computed_columns",
					Message: fmt.Sprintf("column name for table %q cannot be empty", table),
				})
			}
		}
	}

	for singular, plural := range cfg.Naming.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "model.naming.plural_overrides",
				Message: "override keys and values cannot be empty",
			})
		}
	}
	for plural, singular := range cfg.Naming.SingularOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "model.naming.singular_overrides",
				Message: "override keys and values cannot be empty",
			})
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v must be between 0 and 1", o.TraceSampleRatio),
		})
	}

	if o.SQLCommenterEnabled && !o.TracingEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.sqlcommenter_enabled",
			Message: "sqlcommenter has no effect while tracing is disabled",
			Hint:    "enable observability.tracing_enabled",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

package schemarefresh

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"entityql/internal/introspection"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	fingerprintModeStructural  = "structural"
	fingerprintModeLightweight = "lightweight"
	fingerprintModeUnknown     = "unknown"
)

type fingerprintDetails struct {
	Value      string
	Mode       string
	Components map[string]string
}

type fingerprintComponent struct {
	name  string
	query string
}

// Only metadata the model reads is hashed. Comments and indexes do not
// change the entity model.
var structuralComponents = []fingerprintComponent{
	{
		name: "tables",
		query: `
			SELECT TABLE_NAME, TABLE_TYPE
			FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ?
				AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
			ORDER BY TABLE_NAME, TABLE_TYPE
		`,
	},
	{
		name: "columns",
		query: `
			SELECT
				TABLE_NAME,
				COLUMN_NAME,
				CAST(ORDINAL_POSITION AS CHAR),
				DATA_TYPE,
				COLUMN_TYPE,
				IS_NULLABLE,
				EXTRA
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = ?
			ORDER BY TABLE_NAME, ORDINAL_POSITION, COLUMN_NAME
		`,
	},
	{
		name: "primary_keys",
		query: `
			SELECT
				TABLE_NAME,
				COLUMN_NAME,
				CAST(ORDINAL_POSITION AS CHAR)
			FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = ?
				AND CONSTRAINT_NAME = 'PRIMARY'
			ORDER BY TABLE_NAME, ORDINAL_POSITION, COLUMN_NAME
		`,
	},
	{
		name: "foreign_keys",
		query: `
			SELECT
				TABLE_NAME,
				CONSTRAINT_NAME,
				COLUMN_NAME,
				COALESCE(REFERENCED_TABLE_NAME, ''),
				COALESCE(REFERENCED_COLUMN_NAME, ''),
				CAST(ORDINAL_POSITION AS CHAR)
			FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = ?
				AND REFERENCED_TABLE_NAME IS NOT NULL
			ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION, COLUMN_NAME
		`,
	},
}

const lightweightQuery = `
	SELECT
		TABLE_NAME,
		COALESCE(CAST(CREATE_TIME AS CHAR), ''),
		COALESCE(CAST(UPDATE_TIME AS CHAR), '')
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME
`

// computeFingerprintDetails hashes the structural metadata, falling back to
// table timestamps when information_schema access is restricted.
func (m *Manager) computeFingerprintDetails(ctx context.Context) (fingerprintDetails, error) {
	ctx, span := otel.Tracer("entityql/introspection").Start(ctx, "introspection.compute_fingerprint")
	defer span.End()

	details, err := m.computeStructuralFingerprint(ctx, m.db)
	if err == nil {
		span.SetAttributes(
			attribute.String("db.schema", m.databaseName),
			attribute.String("schema.fingerprint_mode", details.Mode),
		)
		return details, nil
	}

	m.logger.Warn("structural fingerprint failed, falling back to lightweight fingerprint",
		slog.String("error", err.Error()),
	)
	fallback, fallbackErr := m.computeLightweightFingerprint(ctx, m.db)
	if fallbackErr != nil {
		span.RecordError(err)
		span.RecordError(fallbackErr)
		return fingerprintDetails{Mode: fingerprintModeUnknown, Components: map[string]string{}},
			fmt.Errorf("failed to compute fingerprints: structural error: %w; fallback error: %v", err, fallbackErr)
	}

	span.SetAttributes(
		attribute.String("db.schema", m.databaseName),
		attribute.String("schema.fingerprint_mode", fallback.Mode),
	)
	return fallback, nil
}

func (m *Manager) computeStructuralFingerprint(ctx context.Context, queryer introspection.Queryer) (fingerprintDetails, error) {
	componentHashes := make(map[string]string, len(structuralComponents))
	for _, component := range structuralComponents {
		hash, err := hashComponentQuery(ctx, queryer, component.query, m.databaseName)
		if err != nil {
			return fingerprintDetails{}, fmt.Errorf("failed to hash %s component: %w", component.name, err)
		}
		componentHashes[component.name] = hash
	}

	return fingerprintDetails{
		Value:      combineComponentHashes(componentHashes),
		Mode:       fingerprintModeStructural,
		Components: componentHashes,
	}, nil
}

func (m *Manager) computeLightweightFingerprint(ctx context.Context, queryer introspection.Queryer) (fingerprintDetails, error) {
	hash, err := hashComponentQuery(ctx, queryer, lightweightQuery, m.databaseName)
	if err != nil {
		return fingerprintDetails{}, err
	}

	componentHashes := map[string]string{"table_timestamps": hash}
	return fingerprintDetails{
		Value:      combineComponentHashes(componentHashes),
		Mode:       fingerprintModeLightweight,
		Components: componentHashes,
	}, nil
}

func hashComponentQuery(ctx context.Context, queryer introspection.Queryer, query string, args ...any) (string, error) {
	rows, err := queryer.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	values := make([]sql.NullString, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	hash := sha256.New()
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return "", err
		}
		// Length-prefixed cells keep delimiter characters inside values from
		// colliding.
		for _, value := range values {
			cell := ""
			if value.Valid {
				cell = value.String
			}
			_, _ = fmt.Fprintf(hash, "%d:%s|", len(cell), cell)
		}
		_, _ = hash.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func combineComponentHashes(componentHashes map[string]string) string {
	if len(componentHashes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(componentHashes))
	for key := range componentHashes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(hash, "%s=%s\n", key, componentHashes[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// changedFingerprintComponents compares over the union of keys so added and
// removed components are reported too.
func changedFingerprintComponents(previous, current map[string]string) []string {
	keySet := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keySet[key] = struct{}{}
	}
	for key := range current {
		keySet[key] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := make([]string, 0, len(keys))
	for _, key := range keys {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

func defaultOrUnknownMode(mode string) string {
	if strings.TrimSpace(mode) == "" {
		return fingerprintModeUnknown
	}
	return mode
}

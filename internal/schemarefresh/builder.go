package schemarefresh

import (
	"context"
	"fmt"

	"entityql/internal/dbexec"
	"entityql/internal/filters"
	"entityql/internal/introspection"
	"entityql/internal/model"
	"entityql/internal/naming"
	"entityql/internal/planner"
	"entityql/internal/resolver"

	"github.com/graphql-go/graphql"
)

// BuildSchemaConfig defines inputs for schema assembly.
type BuildSchemaConfig struct {
	Executor    dbexec.QueryExecutor
	Model       model.Config
	Limits      planner.PlanLimits
	MaxPageSize int
	// Recorder receives one call per planned root query. May be nil.
	Recorder planner.Recorder
	// RegisterFilters adds host row filters to the registry of every snapshot.
	RegisterFilters func(*filters.Registry) error
	// RegisterFields adds root fields. AutoRegister is used when nil.
	RegisterFields func(*resolver.SchemaBuilder) error
}

// BuildSchemaResult contains the artifacts of one assembly.
type BuildSchemaResult struct {
	Model         *model.Model
	Filters       *filters.Registry
	GraphQLSchema graphql.Schema
}

// BuildSchema turns an introspected database into an executable schema:
// model derivation, filter registration, planner and root fields.
func BuildSchema(ctx context.Context, dbSchema *introspection.Schema, cfg BuildSchemaConfig) (*BuildSchemaResult, error) {
	if dbSchema == nil {
		return nil, fmt.Errorf("schema builder requires an introspected schema")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema builder requires a query executor")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := model.FromSchema(dbSchema, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build entity model: %w", err)
	}

	registry := filters.NewRegistry(m)
	if cfg.RegisterFilters != nil {
		if err := cfg.RegisterFilters(registry); err != nil {
			return nil, fmt.Errorf("failed to register filters: %w", err)
		}
	}

	plannerOpts := []planner.Option{
		planner.WithRequirements(registry),
		planner.WithLimits(cfg.Limits),
	}
	if cfg.Recorder != nil {
		plannerOpts = append(plannerOpts, planner.WithRecorder(cfg.Recorder))
	}

	builder := resolver.NewSchemaBuilder(m, cfg.Executor,
		resolver.WithFilters(registry),
		resolver.WithPlanner(planner.New(m, plannerOpts...)),
		resolver.WithNamer(naming.New(cfg.Model.Naming)),
		resolver.WithMaxPageSize(cfg.MaxPageSize),
	)
	register := cfg.RegisterFields
	if register == nil {
		register = (*resolver.SchemaBuilder).AutoRegister
	}
	if err := register(builder); err != nil {
		return nil, fmt.Errorf("failed to register root fields: %w", err)
	}

	graphqlSchema, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	return &BuildSchemaResult{
		Model:         m,
		Filters:       registry,
		GraphQLSchema: graphqlSchema,
	}, nil
}

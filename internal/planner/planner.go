// Package planner decides how a query loads the data a GraphQL field needs.
// It merges filter requirements into the requested tree, tries to build a
// narrowed shape, and falls back to navigation includes over full entities.
package planner

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"entityql/internal/logging"
	"entityql/internal/model"
	"entityql/internal/projection"
	"entityql/internal/queryable"
)

// RequirementSource contributes properties that must be loaded regardless
// of the selection set, such as those read by row filters.
type RequirementSource interface {
	MergeRequirements(info *projection.FieldProjectionInfo)
}

// Recorder receives planning decisions.
type Recorder interface {
	RecordPlan(ctx context.Context, entityType string, projected bool, reason string, includes int)
}

// PlanResult describes the planned query.
type PlanResult struct {
	Query *queryable.Query
	// Info is the requirement tree after merging filter requirements.
	Info      *projection.FieldProjectionInfo
	Projected bool
	// Reason is set when no narrowed shape was used.
	Reason   *Reason
	Includes []string
	// Dropped lists navigations a built shape had to leave out.
	Dropped []string
	Cost    PlanCost
}

// Planner plans queries against one model. It holds no per-request state.
type Planner struct {
	model        *model.Model
	requirements RequirementSource
	recorder     Recorder
	limits       PlanLimits
	selects      SelectBuilder
	includes     IncludeAppender
}

// Option configures a Planner.
type Option func(*Planner)

// WithRequirements merges requirements from src into every plan.
func WithRequirements(src RequirementSource) Option {
	return func(p *Planner) { p.requirements = src }
}

// WithRecorder reports every plan to r.
func WithRecorder(r Recorder) Option {
	return func(p *Planner) { p.recorder = r }
}

// WithLimits rejects plans whose cost exceeds limits.
func WithLimits(limits PlanLimits) Option {
	return func(p *Planner) { p.limits = limits }
}

// New creates a planner for m.
func New(m *model.Model, opts ...Option) *Planner {
	p := &Planner{model: m}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the planner's model.
func (p *Planner) Model() *model.Model {
	return p.model
}

// Plan attaches a shape or includes to q so that executing it loads every
// member info requests plus every member registered filters read. info may
// be nil, which requests nothing beyond filter requirements.
func (p *Planner) Plan(ctx context.Context, q *queryable.Query, info *projection.FieldProjectionInfo) (PlanResult, error) {
	ctx, span := otel.Tracer("entityql/planner").Start(ctx, "planner.Plan")
	defer span.End()

	root := q.Type()
	merged := projection.New(root)
	if info != nil {
		merged = info.Clone()
	}
	if p.requirements != nil {
		p.requirements.MergeRequirements(merged)
	}

	result := PlanResult{Info: merged, Cost: EstimateCost(merged)}
	if err := validateLimits(result.Cost, p.limits); err != nil {
		return PlanResult{}, err
	}

	if q.IsProjected() {
		result.Query = q
		result.Projected = true
		return result, nil
	}

	outcome := p.selects.TryBuild(root, merged, p.model.KeyNames())
	if shape, ok := outcome.Shape(); ok && len(shape.Dropped) == 0 {
		result.Query = q.Select(shape)
		result.Projected = true
	} else {
		if ok {
			result.Dropped = shape.Dropped
		} else {
			reason, _ := outcome.Reason()
			result.Reason = &reason
		}
		result.Query = p.includes.AddIncludes(q, merged.NavigationPaths())
		result.Includes = result.Query.Includes()
	}

	reason := ""
	if result.Reason != nil {
		reason = result.Reason.Kind.String()
	} else if len(result.Dropped) > 0 {
		reason = "abstract_navigation"
	}
	span.SetAttributes(
		attribute.String("entity.type", root.Name),
		attribute.Bool("plan.projected", result.Projected),
		attribute.String("plan.fallback_reason", reason),
		attribute.Int("plan.includes", len(result.Includes)),
	)
	logging.FromContext(ctx).Debug("planned query",
		slog.String("entity_type", root.Name),
		slog.Bool("projected", result.Projected),
		slog.String("fallback_reason", reason),
		slog.Any("includes", result.Includes),
		slog.Any("dropped", result.Dropped),
	)
	if p.recorder != nil {
		p.recorder.RecordPlan(ctx, root.Name, result.Projected, reason, len(result.Includes))
	}
	return result, nil
}

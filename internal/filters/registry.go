// Package filters holds the row-level filters registered per entity type and
// applies them to loaded entities. A filter is a projection of the entity plus
// a predicate over the projected value; the projection tells the planner
// which members must be loaded for the predicate to see them.
package filters

import (
	"context"
	"sync"

	"entityql/internal/dbexec"
	"entityql/internal/diagnostics"
	"entityql/internal/expr"
	"entityql/internal/middleware"
	"entityql/internal/model"
	"entityql/internal/projection"
	"entityql/internal/queryable"
)

// Context is what a predicate sees besides the projected value.
type Context struct {
	// UserContext is whatever the host attached to the request.
	UserContext any
	// Session runs additional queries on the request's connection.
	Session dbexec.QueryExecutor
	// Principal is the authenticated caller, nil for anonymous requests.
	Principal *middleware.AuthContext
}

// Predicate decides whether an entity is visible given its projected value.
type Predicate func(ctx context.Context, fc Context, value any) (bool, error)

// SyncPredicate is a Predicate that neither blocks nor fails.
type SyncPredicate func(fc Context, value any) bool

type filter struct {
	entityType *model.EntityType
	projection expr.Expr
	analysis   projection.Analysis
	predicate  Predicate
}

// Registry maps entity types to their filters. Registration happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	model *model.Model

	mu      sync.RWMutex
	filters []*filter
}

// NewRegistry returns an empty registry over m.
func NewRegistry(m *model.Model) *Registry {
	return &Registry{model: m}
}

// Add registers a filter on the named entity type. The projection is analyzed
// here: reading through a navigation whose declared type is abstract is
// rejected, since the planner could not narrow such a load.
//
// A nil or identity projection adds no required paths. Such a predicate may
// only read members that are loaded for other reasons.
func (r *Registry) Add(typeName string, proj expr.Expr, pred Predicate) error {
	t, ok := r.model.Type(typeName)
	if !ok {
		return diagnostics.Configf(typeName, "", "unknown entity type %s", typeName)
	}
	if pred == nil {
		return diagnostics.Configf(typeName, "", "filter predicate is nil")
	}
	if proj == nil {
		proj = expr.Identity()
	}
	analysis, err := projection.Analyze(t, proj)
	if err != nil {
		return err
	}
	if len(analysis.AbstractAccesses) > 0 {
		a := analysis.AbstractAccesses[0]
		return diagnostics.Configf(t.Name, a.Navigation,
			"filter projection %s reads through navigation %s.%s whose type %s is abstract; declare the filter on a concrete navigation or project the entity itself",
			expr.String(proj), a.DeclaringType, a.Navigation, a.TargetType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, &filter{
		entityType: t,
		projection: proj,
		analysis:   analysis,
		predicate:  pred,
	})
	return nil
}

// AddSync registers a synchronous filter.
func (r *Registry) AddSync(typeName string, proj expr.Expr, pred SyncPredicate) error {
	if pred == nil {
		return r.Add(typeName, proj, nil)
	}
	return r.Add(typeName, proj, func(_ context.Context, fc Context, value any) (bool, error) {
		return pred(fc, value), nil
	})
}

// HasFilters reports whether any filter applies to rows read as t.
func (r *Registry) HasFilters(t *model.EntityType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.filters {
		if relevant(f.entityType, t) {
			return true
		}
	}
	return false
}

// RequiredPaths returns the member paths the filters relevant to t read.
// Filters on t and its base types apply to every row, and filters on derived
// types apply to the rows of that type a query over t may return. Identity
// projections add nothing.
func (r *Registry) RequiredPaths(t *model.EntityType) projection.PathSet {
	out := projection.NewPathSet()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.filters {
		if relevant(f.entityType, t) {
			out.AddAll(f.analysis.Paths)
		}
	}
	return out
}

// MergeRequirements adds the paths every level of info needs for its filters
// to be evaluated. Navigations are only added where they do not lead back to
// a type already on the path, so the result is finite for self-referencing
// and hierarchical models.
func (r *Registry) MergeRequirements(info *projection.FieldProjectionInfo) {
	if info == nil {
		return
	}
	r.merge(info, nil)
}

func (r *Registry) merge(node *projection.FieldProjectionInfo, ancestors []*model.EntityType) {
	node.MergePathsWithin(r.RequiredPaths(node.Type), ancestors)
	next := append(append([]*model.EntityType(nil), ancestors...), node.Type)
	for _, n := range node.SortedNavigations() {
		r.merge(n.Child, next)
	}
}

// ApplyFilter returns the items every applicable filter accepts, in order.
func (r *Registry) ApplyFilter(ctx context.Context, items []*queryable.Entity, fc Context) ([]*queryable.Entity, error) {
	out := make([]*queryable.Entity, 0, len(items))
	for _, item := range items {
		ok, err := r.ShouldInclude(ctx, item, fc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// ShouldInclude evaluates the filters that apply to item's concrete type.
// A nil item is excluded.
func (r *Registry) ShouldInclude(ctx context.Context, item *queryable.Entity, fc Context) (bool, error) {
	if item == nil {
		return false, nil
	}
	for _, f := range r.applicable(item.Type()) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var value any = item
		if !f.analysis.Identity {
			v, err := expr.Eval(f.projection, item)
			if err != nil {
				return false, diagnostics.Configf(f.entityType.Name, "", "evaluate filter projection %s: %v", expr.String(f.projection), err)
			}
			value = v
		}
		ok, err := f.predicate(ctx, fc, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Registry) applicable(t *model.EntityType) []*filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*filter
	for _, f := range r.filters {
		if f.entityType.IsAssignableFrom(t) {
			out = append(out, f)
		}
	}
	return out
}

// relevant reports whether a filter registered on declared can apply to rows
// read as t.
func relevant(declared, t *model.EntityType) bool {
	return declared.IsAssignableFrom(t) || t.IsAssignableFrom(declared)
}

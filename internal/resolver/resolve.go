package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"entityql/internal/connection"
	"entityql/internal/diagnostics"
	"entityql/internal/logging"
	"entityql/internal/model"
	"entityql/internal/projection"
	"entityql/internal/queryable"
)

func propertyResolver(prop *model.Property) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		e, ok := p.Source.(*queryable.Entity)
		if !ok || e == nil {
			return nil, nil
		}
		v, _ := e.Property(prop.Name)
		return v, nil
	}
}

func (b *SchemaBuilder) listResolver(t *model.EntityType, fieldName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.resolve.list",
			attribute.String("graphql.field", fieldName),
			attribute.String("entity.type", t.Name),
		)
		var items []*queryable.Entity
		defer func() { finishResolverSpan(span, err, len(items)) }()

		if ids, ok := p.Args["ids"].([]interface{}); ok && len(ids) == 0 {
			return []*queryable.Entity{}, nil
		}
		q, err := rootQuery(t, p.Args)
		if err != nil {
			return nil, err
		}
		// Filtered rows are paged after filtering so that skip and take count
		// visible rows only.
		filtered := b.filters.HasFilters(t)
		if !filtered {
			if skip := intArg(p.Args, "skip"); skip != nil {
				q = q.Skip(*skip)
			}
			if take := intArg(p.Args, "take"); take != nil {
				q = q.Take(*take)
			}
		}

		info := projection.FromSelection(t, firstFieldAST(p.Info.FieldASTs), p.Info.Fragments)
		items, err = b.load(ctx, q, info)
		if err == nil {
			items, err = b.filter(ctx, items)
		}
		if err != nil {
			return nil, b.fieldError(ctx, err, fieldName)
		}
		if filtered {
			items = page(items, p.Args)
		}
		return items, nil
	}
}

func (b *SchemaBuilder) singleResolver(t *model.EntityType, fieldName string, nullable bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.resolve.single",
			attribute.String("graphql.field", fieldName),
			attribute.String("entity.type", t.Name),
		)
		var items []*queryable.Entity
		defer func() { finishResolverSpan(span, err, len(items)) }()

		q, err := rootQuery(t, map[string]interface{}{"id": p.Args["id"]})
		if err != nil {
			return nil, err
		}
		info := projection.FromSelection(t, firstFieldAST(p.Info.FieldASTs), p.Info.Fragments)
		items, err = b.load(ctx, q, info)
		if err == nil {
			items, err = b.filter(ctx, items)
		}
		if err != nil {
			return nil, b.fieldError(ctx, err, fieldName)
		}
		if len(items) == 0 {
			if nullable {
				return nil, nil
			}
			return nil, &diagnostics.NotFoundError{Field: fieldName, Type: t.Name}
		}
		return items[0], nil
	}
}

func (b *SchemaBuilder) connectionResolver(t *model.EntityType, fieldName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.resolve.connection",
			attribute.String("graphql.field", fieldName),
			attribute.String("entity.type", t.Name),
		)
		var items []*queryable.Entity
		defer func() { finishResolverSpan(span, err, len(items)) }()

		q, err := rootQuery(t, p.Args)
		if err != nil {
			return nil, err
		}
		args := connectionArgsFrom(p.Args)
		info := projection.FromSelection(t, firstFieldAST(p.Info.FieldASTs), p.Info.Fragments)

		var window connection.Window
		if b.filters.HasFilters(t) {
			var all []*queryable.Entity
			all, err = b.load(ctx, q, info)
			if err == nil {
				all, err = b.filter(ctx, all)
			}
			if err != nil {
				return nil, b.fieldError(ctx, err, fieldName)
			}
			window, err = connection.ComputeWindow(t.Name, args, len(all), b.maxPageSize)
			if err != nil {
				return nil, err
			}
			items = all[window.Start:window.End]
		} else {
			count, err := b.executor.Count(ctx, q)
			if err != nil {
				return nil, b.fieldError(ctx, err, fieldName)
			}
			window, err = connection.ComputeWindow(t.Name, args, count, b.maxPageSize)
			if err != nil {
				return nil, err
			}
			if window.Take() > 0 {
				items, err = b.load(ctx, q.Skip(window.Skip()).Take(window.Take()), info)
				if err != nil {
					return nil, b.fieldError(ctx, err, fieldName)
				}
			}
		}
		return connectionResult(connection.Build(t.Name, items, window)), nil
	}
}

func connectionResult(conn connection.Connection[*queryable.Entity]) map[string]interface{} {
	edges := make([]map[string]interface{}, len(conn.Edges))
	for i, edge := range conn.Edges {
		edges[i] = map[string]interface{}{
			"cursor": edge.Cursor,
			"node":   edge.Node,
		}
	}
	items := conn.Items
	if items == nil {
		items = []*queryable.Entity{}
	}
	return map[string]interface{}{
		"totalCount": conn.TotalCount,
		"edges":      edges,
		"items":      items,
		"pageInfo": map[string]interface{}{
			"hasNextPage":     conn.PageInfo.HasNextPage,
			"hasPreviousPage": conn.PageInfo.HasPreviousPage,
			"startCursor":     optionalString(conn.PageInfo.StartCursor),
			"endCursor":       optionalString(conn.PageInfo.EndCursor),
		},
	}
}

func optionalString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func (b *SchemaBuilder) navigationResolver(nav *model.Navigation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		owner, ok := p.Source.(*queryable.Entity)
		if !ok || owner == nil {
			return nil, nil
		}
		ctx, span := startResolverSpan(p.Context, "graphql.resolve.navigation",
			attribute.String("graphql.field", p.Info.FieldName),
			attribute.String("navigation", nav.Path()),
		)
		var items []*queryable.Entity
		defer func() { finishResolverSpan(span, err, len(items)) }()

		items, err = b.loadNavigation(ctx, owner, nav)
		if err == nil {
			items, err = b.filter(ctx, items)
		}
		if err != nil {
			return nil, b.fieldError(ctx, err, p.Info.FieldName)
		}
		if nav.IsCollection {
			return items, nil
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	}
}

// loadNavigation returns what nav holds for owner, loading it for the whole
// sibling group when the plan did not.
func (b *SchemaBuilder) loadNavigation(ctx context.Context, owner *queryable.Entity, nav *model.Navigation) ([]*queryable.Entity, error) {
	if load, ok := b.loaders[nav]; ok {
		return load(ctx, owner)
	}
	if !owner.IsLoaded(nav.Name) {
		if err := b.executor.EnsureLoaded(ctx, owner, nav.Name); err != nil {
			return nil, err
		}
	}
	if nav.IsCollection {
		items, _ := owner.Collection(nav.Name)
		return items, nil
	}
	target, _ := owner.Reference(nav.Name)
	if target == nil {
		return nil, nil
	}
	return []*queryable.Entity{target}, nil
}

func (b *SchemaBuilder) load(ctx context.Context, q *queryable.Query, info *projection.FieldProjectionInfo) ([]*queryable.Entity, error) {
	plan, err := b.planner.Plan(ctx, q, info)
	if err != nil {
		return nil, err
	}
	return b.executor.ToList(ctx, plan.Query)
}

// filter drops the entities registered filters reject, after loading any
// navigation a filter reads that the plan left out.
func (b *SchemaBuilder) filter(ctx context.Context, items []*queryable.Entity) ([]*queryable.Entity, error) {
	if len(items) == 0 {
		return items, nil
	}
	if err := b.ensurePaths(ctx, items); err != nil {
		return nil, err
	}
	return b.filters.ApplyFilter(ctx, items, b.filterContext(ctx))
}

func (b *SchemaBuilder) ensurePaths(ctx context.Context, items []*queryable.Entity) error {
	required := make(map[*model.EntityType][]string)
	for _, e := range items {
		paths, ok := required[e.Type()]
		if !ok {
			paths = b.filters.RequiredPaths(e.Type()).Sorted()
			required[e.Type()] = paths
		}
		for _, path := range paths {
			if err := b.ensurePath(ctx, e, strings.Split(path, ".")); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *SchemaBuilder) ensurePath(ctx context.Context, e *queryable.Entity, segments []string) error {
	if e == nil || len(segments) == 0 {
		return nil
	}
	nav := e.Type().FindNavigation(segments[0])
	if nav == nil {
		return nil
	}
	if !e.IsLoaded(nav.Name) {
		if err := b.executor.EnsureLoaded(ctx, e, nav.Name); err != nil {
			return err
		}
	}
	if !nav.IsCollection {
		target, _ := e.Reference(nav.Name)
		return b.ensurePath(ctx, target, segments[1:])
	}
	items, _ := e.Collection(nav.Name)
	for _, item := range items {
		if err := b.ensurePath(ctx, item, segments[1:]); err != nil {
			return err
		}
	}
	return nil
}

// fieldError names the field on query errors and logs the failure.
// Cancellation is returned untouched.
func (b *SchemaBuilder) fieldError(ctx context.Context, err error, field string) error {
	if diagnostics.IsCanceled(err) {
		return err
	}
	var qe *diagnostics.QueryError
	if errors.As(err, &qe) && qe.Field == "" {
		qe.Field = field
	}
	logging.FromContext(ctx).Error("field resolution failed",
		slog.String("field", field),
		slog.String("error", err.Error()),
	)
	return err
}

package queryable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entityql/internal/dbexec"
	"entityql/internal/diagnostics"
	"entityql/internal/model"
	"entityql/internal/sqlutil"
)

// DefaultBatchSize bounds the number of keys in one IN list.
const DefaultBatchSize = 500

// ErrNoSession is returned when neither the context nor the executor
// provides a database session.
var ErrNoSession = errors.New("no database session")

// Executor runs queries and loads navigations with one statement per
// navigation level.
type Executor struct {
	exec      dbexec.QueryExecutor
	batchSize int
}

// Option configures an Executor.
type Option func(*Executor)

// WithBatchSize sets the maximum number of keys per IN list.
func WithBatchSize(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.batchSize = n
		}
	}
}

// NewExecutor creates an executor. exec is used when the request context
// carries no session; it may be nil.
func NewExecutor(exec dbexec.QueryExecutor, opts ...Option) *Executor {
	x := &Executor{exec: exec, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Executor) session(ctx context.Context) (dbexec.QueryExecutor, error) {
	if exec, ok := dbexec.SessionFromContext(ctx); ok {
		return exec, nil
	}
	if x.exec == nil {
		return nil, ErrNoSession
	}
	return x.exec, nil
}

// ToList executes q and loads its shape navigations or includes.
func (x *Executor) ToList(ctx context.Context, q *Query) (result []*Entity, err error) {
	ctx, span := startSpan(ctx, "queryable.ToList",
		attribute.String("entity.type", q.typ.Name),
		attribute.Bool("query.projected", q.IsProjected()),
		attribute.Int("query.includes", len(q.includes)),
	)
	defer func() { finishSpan(span, err) }()

	entities, err := x.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.shape != nil {
		if err := x.loadShape(ctx, entities, q.shape); err != nil {
			return nil, err
		}
		return entities, nil
	}
	if err := x.loadIncludes(ctx, entities, q.typ, q.includes); err != nil {
		return nil, err
	}
	return entities, nil
}

// Count returns the number of rows matched by q, ignoring paging.
func (x *Executor) Count(ctx context.Context, q *Query) (int, error) {
	planned, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	rows, err := x.query(ctx, planned, q.typ)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, x.queryError(ctx, err, planned, q.typ)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, x.queryError(ctx, err, planned, q.typ)
	}
	return int(count), nil
}

// EnsureLoaded loads navigation name of e unless it is loaded already. The
// navigation is loaded for every member of e's group that lacks it, so
// sibling entities resolved afterwards need no further statements.
func (x *Executor) EnsureLoaded(ctx context.Context, e *Entity, name string) error {
	nav := e.typ.FindNavigation(name)
	if nav == nil {
		return fmt.Errorf("%s has no navigation %s", e.typ.Name, name)
	}
	g := e.Group()
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.IsLoaded(nav.Name) {
		return nil
	}
	_, err := x.LoadNavigation(ctx, pendingOwners(g.members, nav), nav, nil)
	return err
}

// LoadNavigation loads nav for owners and returns the related entities,
// which form a new group. A nil shape loads full entities.
func (x *Executor) LoadNavigation(ctx context.Context, owners []*Entity, nav *model.Navigation, shape *Shape) (result []*Entity, err error) {
	if len(owners) == 0 {
		return nil, nil
	}
	ctx, span := startSpan(ctx, "queryable.LoadNavigation",
		attribute.String("navigation", nav.Path()),
		attribute.Int("navigation.owners", len(owners)),
	)
	defer func() { finishSpan(span, err) }()

	ownerKeys, matchKeys := nav.ForeignKeys, nav.PrincipalKeys
	if nav.IsCollection {
		ownerKeys, matchKeys = nav.PrincipalKeys, nav.ForeignKeys
	}

	var tuples [][]any
	seen := make(map[string]struct{})
	for _, owner := range owners {
		key, ok, err := owner.Key(ownerKeys)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tuple := make([]any, len(ownerKeys))
		for i, k := range ownerKeys {
			tuple[i], _ = owner.Property(k)
		}
		tuples = append(tuples, tuple)
	}

	if shape != nil {
		shape = withColumns(shape, matchKeys)
	}
	var related []*Entity
	for _, chunk := range chunkTuples(tuples, x.batchSize) {
		q := From(nav.Target).Where(inPredicate(nav.Target, matchKeys, chunk))
		if shape != nil {
			q = q.Select(shape)
		}
		fetched, err := x.fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		related = append(related, fetched...)
	}
	newGroup(related)

	index := make(map[string][]*Entity, len(related))
	for _, r := range related {
		key, ok, err := r.Key(matchKeys)
		if err != nil {
			return nil, err
		}
		if ok {
			index[key] = append(index[key], r)
		}
	}

	for _, owner := range owners {
		key, ok, _ := owner.Key(ownerKeys)
		var matched []*Entity
		if ok {
			matched = index[key]
		}
		if !nav.IsCollection {
			if len(matched) > 0 {
				owner.SetReference(nav, matched[0])
			} else {
				owner.SetReference(nav, nil)
			}
			continue
		}
		owner.SetCollection(nav, matched)
		// A partial owner would hand filters reading through the inverse
		// a row without their columns; leave it for EnsureLoaded.
		if nav.Inverse != nil && !owner.partial {
			for _, child := range matched {
				child.SetReference(nav.Inverse, owner)
			}
		}
	}
	return related, nil
}

// fetch runs the row statement of q and materializes the rows.
func (x *Executor) fetch(ctx context.Context, q *Query) ([]*Entity, error) {
	planned, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := x.query(ctx, planned, q.typ)
	if err != nil {
		return nil, err
	}
	entities, err := materialize(rows, q)
	closeErr := rows.Close()
	if err != nil {
		return nil, x.queryError(ctx, err, planned, q.typ)
	}
	if closeErr != nil {
		return nil, x.queryError(ctx, closeErr, planned, q.typ)
	}
	newGroup(entities)
	return entities, nil
}

func (x *Executor) query(ctx context.Context, planned SQLQuery, t *model.EntityType) (dbexec.Rows, error) {
	exec, err := x.session(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, x.queryError(ctx, err, planned, t)
	}
	return rows, nil
}

func (x *Executor) queryError(ctx context.Context, err error, planned SQLQuery, t *model.EntityType) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return diagnostics.WrapQuery(err, "", planned.SQL, t.Name)
}

func (x *Executor) loadShape(ctx context.Context, entities []*Entity, shape *Shape) error {
	for _, n := range shape.Navigations {
		owners := owning(entities, n.Navigation)
		related, err := x.LoadNavigation(ctx, owners, n.Navigation, n.Shape)
		if err != nil {
			return err
		}
		if n.Shape != nil && len(n.Shape.Navigations) > 0 {
			if err := x.loadShape(ctx, related, n.Shape); err != nil {
				return err
			}
		}
	}
	return nil
}

type includeNode struct {
	nav      *model.Navigation
	children []*includeNode
}

func includeTree(root *model.EntityType, paths []string) []*includeNode {
	var roots []*includeNode
	for _, path := range paths {
		level := &roots
		current := root
		for _, segment := range strings.Split(path, ".") {
			nav := current.FindNavigationInHierarchy(segment)
			if nav == nil {
				break
			}
			var node *includeNode
			for _, existing := range *level {
				if existing.nav == nav {
					node = existing
					break
				}
			}
			if node == nil {
				node = &includeNode{nav: nav}
				*level = append(*level, node)
			}
			level = &node.children
			current = nav.Target
		}
	}
	return roots
}

func (x *Executor) loadIncludes(ctx context.Context, entities []*Entity, root *model.EntityType, paths []string) error {
	return x.loadIncludeNodes(ctx, entities, includeTree(root, paths))
}

func (x *Executor) loadIncludeNodes(ctx context.Context, entities []*Entity, nodes []*includeNode) error {
	for _, node := range nodes {
		owners := owning(entities, node.nav)
		if _, err := x.LoadNavigation(ctx, pendingOwners(owners, node.nav), node.nav, nil); err != nil {
			return err
		}
		if len(node.children) == 0 {
			continue
		}
		if err := x.loadIncludeNodes(ctx, loadedRelated(owners, node.nav), node.children); err != nil {
			return err
		}
	}
	return nil
}

// owning filters entities to those whose type exposes nav.
func owning(entities []*Entity, nav *model.Navigation) []*Entity {
	out := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		if e.typ.FindNavigation(nav.Name) == nav {
			out = append(out, e)
		}
	}
	return out
}

func pendingOwners(entities []*Entity, nav *model.Navigation) []*Entity {
	out := make([]*Entity, 0, len(entities))
	for _, e := range owning(entities, nav) {
		if !e.IsLoaded(nav.Name) {
			out = append(out, e)
		}
	}
	return out
}

// loadedRelated collects the distinct entities reachable through nav.
func loadedRelated(owners []*Entity, nav *model.Navigation) []*Entity {
	seen := make(map[*Entity]struct{})
	var out []*Entity
	add := func(e *Entity) {
		if e == nil {
			return
		}
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	for _, owner := range owners {
		if nav.IsCollection {
			items, _ := owner.Collection(nav.Name)
			for _, item := range items {
				add(item)
			}
			continue
		}
		ref, _ := owner.Reference(nav.Name)
		add(ref)
	}
	return out
}

// withColumns returns shape extended with properties needed to match rows.
func withColumns(shape *Shape, names []string) *Shape {
	if shape.All {
		return shape
	}
	var missing []string
	for _, n := range names {
		if !shape.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return shape
	}
	out := *shape
	out.Columns = append(append([]string(nil), shape.Columns...), missing...)
	return &out
}

// inPredicate matches rows whose key columns equal one of the tuples.
func inPredicate(t *model.EntityType, keys []string, tuples [][]any) sq.Sqlizer {
	columns := make([]string, len(keys))
	for i, k := range keys {
		col := k
		if p := t.FindProperty(k); p != nil {
			col = p.Column
		}
		columns[i] = sqlutil.QualifiedColumn(t.Table, col)
	}
	if len(columns) == 1 {
		flat := make([]interface{}, len(tuples))
		for i, tuple := range tuples {
			flat[i] = tuple[0]
		}
		return sq.Eq{columns[0]: flat}
	}
	or := make(sq.Or, 0, len(tuples))
	for _, tuple := range tuples {
		eq := sq.Eq{}
		for i, col := range columns {
			eq[col] = tuple[i]
		}
		or = append(or, eq)
	}
	return or
}

func chunkTuples(values [][]any, max int) [][][]any {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][][]any{values}
	}
	chunks := make([][][]any, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func materialize(rows dbexec.Rows, q *Query) ([]*Entity, error) {
	cols := q.columns()
	var out []*Entity
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		t := q.typ
		if q.shape != nil && !q.shape.All {
			t = q.shape.Type
		}
		for i, c := range cols {
			if c.prop != nil {
				continue
			}
			disc := fmt.Sprint(convertValue(nil, values[i]))
			concrete, ok := q.typ.TypeForDiscriminator(disc)
			if !ok {
				return nil, fmt.Errorf("unknown discriminator %q for %s", disc, q.typ.Name)
			}
			t = concrete
		}

		e := &Entity{
			typ:     t,
			values:  make(map[string]any, len(cols)),
			navs:    make(map[string]any),
			partial: q.shape != nil && !q.shape.All,
		}
		for i, c := range cols {
			if c.prop == nil || t.FindProperty(c.prop.Name) != c.prop {
				continue
			}
			e.values[strings.ToLower(c.prop.Name)] = convertValue(c.prop, values[i])
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func convertValue(p *model.Property, val interface{}) interface{} {
	if val == nil {
		return nil
	}
	if b, ok := val.([]byte); ok {
		val = string(b)
	}
	if s, ok := val.(string); ok && p != nil && p.Kind != model.KindString {
		if parsed, err := p.Kind.Parse(s); err == nil {
			return parsed
		}
	}
	return val
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("entityql/queryable").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Package queryable composes queries over entity sets. A Query is immutable:
// every builder method returns a copy. Queries render to SQL with squirrel
// and are executed by an Executor, which also loads included navigations.
package queryable

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entityql/internal/model"
	"entityql/internal/sqlutil"
)

// ErrIncludeAfterSelect is returned when an include is added to a projected
// query. Projected queries carry their navigations in the shape.
var ErrIncludeAfterSelect = errors.New("include is not supported after select")

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Order sorts by one property.
type Order struct {
	Property   string
	Descending bool
}

// Query is a composable query over the entities of one type.
type Query struct {
	typ      *model.EntityType
	where    []sq.Sqlizer
	orders   []Order
	skip     uint64
	take     uint64
	hasTake  bool
	shape    *Shape
	includes []string
}

// From starts a query over every entity assignable to t.
func From(t *model.EntityType) *Query {
	return &Query{typ: t}
}

func (q *Query) clone() *Query {
	out := *q
	out.where = append([]sq.Sqlizer(nil), q.where...)
	out.orders = append([]Order(nil), q.orders...)
	out.includes = append([]string(nil), q.includes...)
	return &out
}

// Type returns the queried entity type.
func (q *Query) Type() *model.EntityType { return q.typ }

// Where adds a predicate. Predicates are combined with AND.
func (q *Query) Where(pred sq.Sqlizer) *Query {
	if pred == nil {
		return q
	}
	out := q.clone()
	out.where = append(out.where, pred)
	return out
}

// OrderBy appends sort orders.
func (q *Query) OrderBy(orders ...Order) *Query {
	out := q.clone()
	out.orders = append(out.orders, orders...)
	return out
}

// Orders returns the sort orders.
func (q *Query) Orders() []Order { return q.orders }

// Skip sets the number of rows to skip.
func (q *Query) Skip(n int) *Query {
	out := q.clone()
	if n < 0 {
		n = 0
	}
	out.skip = uint64(n)
	return out
}

// Take limits the number of rows returned.
func (q *Query) Take(n int) *Query {
	out := q.clone()
	if n < 0 {
		n = 0
	}
	out.take = uint64(n)
	out.hasTake = true
	return out
}

// Select narrows the query to shape. The shape replaces any includes.
func (q *Query) Select(shape *Shape) *Query {
	out := q.clone()
	out.shape = shape
	out.includes = nil
	return out
}

// IsProjected reports whether Select was applied.
func (q *Query) IsProjected() bool { return q.shape != nil }

// Shape returns the selected shape, or nil.
func (q *Query) Shape() *Shape { return q.shape }

// Include adds a dotted navigation path to load with the query. Paths are
// validated against the model and deduplicated case-insensitively.
func (q *Query) Include(path string) (*Query, error) {
	if q.shape != nil {
		return q, ErrIncludeAfterSelect
	}
	resolved, err := resolveIncludePath(q.typ, path)
	if err != nil {
		return q, err
	}
	for _, existing := range q.includes {
		if strings.EqualFold(existing, resolved) {
			return q, nil
		}
	}
	out := q.clone()
	out.includes = append(out.includes, resolved)
	return out, nil
}

// Includes returns the included navigation paths in the order added.
func (q *Query) Includes() []string { return q.includes }

// resolveIncludePath maps a dotted path to model navigation names. A segment
// may name a navigation of a derived type of the previous target.
func resolveIncludePath(t *model.EntityType, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty include path on %s", t.Name)
	}
	current := t
	names := make([]string, 0, strings.Count(path, ".")+1)
	for _, segment := range strings.Split(path, ".") {
		nav := current.FindNavigationInHierarchy(segment)
		if nav == nil {
			return "", fmt.Errorf("include %q: %s has no navigation %s", path, current.Name, segment)
		}
		names = append(names, nav.Name)
		current = nav.Target
	}
	return strings.Join(names, "."), nil
}

// column is one selected column; prop is nil for the discriminator.
type column struct {
	name string
	prop *model.Property
}

// columns lists the selected columns in scan order.
func (q *Query) columns() []column {
	return shapeColumns(q.typ, q.shape)
}

func shapeColumns(t *model.EntityType, shape *Shape) []column {
	var out []column
	if disc := t.DiscriminatorColumn(); disc != "" && (shape == nil || shape.All) {
		out = append(out, column{name: disc})
	}
	var props []*model.Property
	if shape == nil {
		props = t.HierarchyProperties()
	} else {
		props = shape.Properties()
	}
	for _, p := range props {
		out = append(out, column{name: p.Column, prop: p})
	}
	return out
}

// Columns returns the selected column names in scan order.
func (q *Query) Columns() []string {
	cols := q.columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// Column returns the qualified column of property name on the queried type.
func (q *Query) Column(name string) (string, error) {
	p := q.typ.FindPropertyInHierarchy(name)
	if p == nil {
		return "", fmt.Errorf("%s has no property %s", q.typ.Name, name)
	}
	return sqlutil.QualifiedColumn(q.typ.Table, p.Column), nil
}

func (q *Query) filtered(builder sq.SelectBuilder) sq.SelectBuilder {
	if disc := q.typ.DiscriminatorColumn(); disc != "" {
		builder = builder.Where(sq.Eq{sqlutil.QualifiedColumn(q.typ.Table, disc): q.typ.DiscriminatorValues()})
	}
	for _, pred := range q.where {
		builder = builder.Where(pred)
	}
	return builder
}

// ToSQL renders the row query.
func (q *Query) ToSQL() (SQLQuery, error) {
	names := q.Columns()
	builder := q.filtered(sq.Select(sqlutil.QualifiedColumns(q.typ.Table, names)...).
		From(sqlutil.QuoteIdentifier(q.typ.Table)))

	orders := q.orders
	if len(orders) == 0 && (q.hasTake || q.skip > 0) {
		for _, k := range q.typ.Keys() {
			orders = append(orders, Order{Property: k})
		}
	}
	for _, o := range orders {
		col, err := q.Column(o.Property)
		if err != nil {
			return SQLQuery{}, err
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		builder = builder.OrderBy(col + " " + dir)
	}
	if q.hasTake {
		builder = builder.Limit(q.take)
	} else if q.skip > 0 {
		builder = builder.Limit(math.MaxUint64)
	}
	if q.skip > 0 {
		builder = builder.Offset(q.skip)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// CountSQL renders a count of the rows matched by the predicates, ignoring
// paging and ordering.
func (q *Query) CountSQL() (SQLQuery, error) {
	builder := q.filtered(sq.Select("COUNT(*)").From(sqlutil.QuoteIdentifier(q.typ.Table)))
	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// Paging returns the skip and take of the query; take is -1 when unset.
func (q *Query) Paging() (skip, take int) {
	take = -1
	if q.hasTake {
		take = int(q.take)
	}
	return int(q.skip), take
}

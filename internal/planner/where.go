package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entityql/internal/model"
	"entityql/internal/queryable"
	"entityql/internal/sqlutil"
)

// Comparison names a where operator.
type Comparison string

const (
	Equal              Comparison = "equal"
	NotEqual           Comparison = "notEqual"
	GreaterThan        Comparison = "greaterThan"
	GreaterThanOrEqual Comparison = "greaterThanOrEqual"
	LessThan           Comparison = "lessThan"
	LessThanOrEqual    Comparison = "lessThanOrEqual"
	Contains           Comparison = "contains"
	StartsWith         Comparison = "startsWith"
	EndsWith           Comparison = "endsWith"
	In                 Comparison = "in"
	NotIn              Comparison = "notIn"
)

// Comparisons lists every supported operator.
var Comparisons = []Comparison{
	Equal, NotEqual, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual,
	Contains, StartsWith, EndsWith, In, NotIn,
}

// Connector joins an expression to the one after it.
type Connector string

const (
	And Connector = "and"
	Or  Connector = "or"
)

// WhereExpression is one parsed where argument. Either Path or Group is set.
// Values are textual and parsed by the property's kind; an empty Value
// compares against NULL.
type WhereExpression struct {
	Path       string
	Comparison Comparison
	Value      []string
	Negate     bool
	Connector  Connector
	Group      []WhereExpression
}

// OrderBy is one parsed orderBy argument.
type OrderBy struct {
	Path       string
	Descending bool
}

// BuildWhere translates expressions into a predicate over t. Expressions are
// folded left to right, each joined to the next by its connector. A path may
// cross one navigation; the comparison then becomes an EXISTS subquery over
// the navigation target.
func BuildWhere(t *model.EntityType, exprs []WhereExpression) (sq.Sqlizer, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	state := &whereState{root: t}
	return state.fold(exprs)
}

type whereState struct {
	root         *model.EntityType
	aliasCounter int
}

func (s *whereState) nextAlias(table string) string {
	s.aliasCounter++
	return fmt.Sprintf("__%s_%d", strings.ReplaceAll(table, "`", ""), s.aliasCounter)
}

func (s *whereState) fold(exprs []WhereExpression) (sq.Sqlizer, error) {
	var acc sq.Sqlizer
	connector := And
	for _, e := range exprs {
		cond, err := s.expression(e)
		if err != nil {
			return nil, err
		}
		switch {
		case acc == nil:
			acc = cond
		case connector == Or:
			acc = sq.Or{acc, cond}
		default:
			acc = sq.And{acc, cond}
		}
		connector = e.Connector
		if connector == "" {
			connector = And
		}
		if connector != And && connector != Or {
			return nil, fmt.Errorf("unknown connector %q", e.Connector)
		}
	}
	return acc, nil
}

func (s *whereState) expression(e WhereExpression) (sq.Sqlizer, error) {
	var cond sq.Sqlizer
	var err error
	if len(e.Group) > 0 {
		if e.Path != "" {
			return nil, fmt.Errorf("where expression cannot have both a path and a group")
		}
		cond, err = s.fold(e.Group)
	} else {
		cond, err = s.path(e)
	}
	if err != nil {
		return nil, err
	}
	if e.Negate {
		return not{cond}, nil
	}
	return cond, nil
}

func (s *whereState) path(e WhereExpression) (sq.Sqlizer, error) {
	segments := splitPath(e.Path)
	switch len(segments) {
	case 1:
		p := s.root.FindPropertyInHierarchy(segments[0])
		if p == nil {
			return nil, fmt.Errorf("%s has no property %s", s.root.Name, segments[0])
		}
		return comparison(sqlutil.QualifiedColumn(s.root.Table, p.Column), p, e.Comparison, e.Value)
	case 2:
		nav := s.root.FindNavigationInHierarchy(segments[0])
		if nav == nil {
			return nil, fmt.Errorf("%s has no navigation %s", s.root.Name, segments[0])
		}
		p := nav.Target.FindPropertyInHierarchy(segments[1])
		if p == nil {
			return nil, fmt.Errorf("%s has no property %s", nav.Target.Name, segments[1])
		}
		alias := s.nextAlias(nav.Target.Table)
		inner, err := comparison(sqlutil.QualifiedColumn(alias, p.Column), p, e.Comparison, e.Value)
		if err != nil {
			return nil, err
		}
		return existsThrough(s.root, nav, alias, inner)
	default:
		return nil, fmt.Errorf("where path %q crosses more than one navigation", e.Path)
	}
}

// existsThrough correlates a subquery over nav's target with the root row.
func existsThrough(root *model.EntityType, nav *model.Navigation, alias string, inner sq.Sqlizer) (sq.Sqlizer, error) {
	target := nav.Target
	ownerKeys, targetKeys := nav.ForeignKeys, nav.PrincipalKeys
	if nav.IsCollection {
		ownerKeys, targetKeys = nav.PrincipalKeys, nav.ForeignKeys
	}
	builder := sq.Select("1").
		From(fmt.Sprintf("%s AS %s", sqlutil.QuoteIdentifier(target.Table), sqlutil.QuoteIdentifier(alias)))
	for i := range ownerKeys {
		outer := root.FindPropertyInHierarchy(ownerKeys[i])
		remote := target.FindProperty(targetKeys[i])
		if outer == nil || remote == nil {
			return nil, fmt.Errorf("navigation %s has unmapped keys", nav.Path())
		}
		builder = builder.Where(fmt.Sprintf("%s = %s",
			sqlutil.QualifiedColumn(alias, remote.Column),
			sqlutil.QualifiedColumn(root.Table, outer.Column)))
	}
	if disc := target.DiscriminatorColumn(); disc != "" {
		builder = builder.Where(sq.Eq{sqlutil.QualifiedColumn(alias, disc): target.DiscriminatorValues()})
	}
	builder = builder.Where(inner)
	subquery, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr(fmt.Sprintf("EXISTS (%s)", subquery), args...), nil
}

func comparison(column string, p *model.Property, op Comparison, raw []string) (sq.Sqlizer, error) {
	values := make([]interface{}, len(raw))
	for i, r := range raw {
		v, err := p.Kind.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		values[i] = v
	}
	single := func() (interface{}, error) {
		switch len(values) {
		case 0:
			return nil, nil
		case 1:
			return values[0], nil
		default:
			return nil, fmt.Errorf("%s on %s takes one value, got %d", op, p.Name, len(values))
		}
	}
	text := func() (string, error) {
		if len(raw) != 1 {
			return "", fmt.Errorf("%s on %s takes one value, got %d", op, p.Name, len(raw))
		}
		return escapeLike(raw[0]), nil
	}

	switch op {
	case Equal, "":
		v, err := single()
		if err != nil {
			return nil, err
		}
		return sq.Eq{column: v}, nil
	case NotEqual:
		v, err := single()
		if err != nil {
			return nil, err
		}
		return sq.NotEq{column: v}, nil
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		v, err := single()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("%s on %s requires a value", op, p.Name)
		}
		switch op {
		case GreaterThan:
			return sq.Gt{column: v}, nil
		case GreaterThanOrEqual:
			return sq.GtOrEq{column: v}, nil
		case LessThan:
			return sq.Lt{column: v}, nil
		default:
			return sq.LtOrEq{column: v}, nil
		}
	case Contains:
		s, err := text()
		if err != nil {
			return nil, err
		}
		return sq.Like{column: "%" + s + "%"}, nil
	case StartsWith:
		s, err := text()
		if err != nil {
			return nil, err
		}
		return sq.Like{column: s + "%"}, nil
	case EndsWith:
		s, err := text()
		if err != nil {
			return nil, err
		}
		return sq.Like{column: "%" + s}, nil
	case In:
		if len(values) == 0 {
			return nil, fmt.Errorf("in on %s requires values", p.Name)
		}
		return sq.Eq{column: values}, nil
	case NotIn:
		if len(values) == 0 {
			return nil, fmt.Errorf("notIn on %s requires values", p.Name)
		}
		return sq.NotEq{column: values}, nil
	default:
		return nil, fmt.Errorf("unknown comparison %q", op)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// not negates a predicate.
type not struct {
	inner sq.Sqlizer
}

func (n not) ToSql() (string, []interface{}, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

// BuildOrder resolves orderBy paths to root properties.
func BuildOrder(t *model.EntityType, orders []OrderBy) ([]queryable.Order, error) {
	out := make([]queryable.Order, 0, len(orders))
	for _, o := range orders {
		p := t.FindPropertyInHierarchy(o.Path)
		if p == nil {
			return nil, fmt.Errorf("%s has no property %s to order by", t.Name, o.Path)
		}
		out = append(out, queryable.Order{Property: p.Name, Descending: o.Descending})
	}
	return out, nil
}

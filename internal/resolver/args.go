package resolver

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"entityql/internal/connection"
	"entityql/internal/model"
	"entityql/internal/planner"
	"entityql/internal/queryable"
)

func firstFieldAST(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

func (b *SchemaBuilder) filterArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"where": &graphql.ArgumentConfig{
			Type: graphql.NewList(graphql.NewNonNull(b.whereInputType())),
		},
		"orderBy": &graphql.ArgumentConfig{
			Type: graphql.NewList(graphql.NewNonNull(b.orderByInputType())),
		},
	}
}

func (b *SchemaBuilder) listArgs(t *model.EntityType) graphql.FieldConfigArgument {
	args := b.filterArgs()
	args["skip"] = &graphql.ArgumentConfig{Type: b.nonNegativeInt}
	args["take"] = &graphql.ArgumentConfig{Type: b.nonNegativeInt}
	if len(t.Keys()) == 1 {
		args["id"] = &graphql.ArgumentConfig{Type: graphql.ID}
		args["ids"] = &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.ID))}
	}
	return args
}

func (b *SchemaBuilder) connectionArgs() graphql.FieldConfigArgument {
	args := b.filterArgs()
	args["first"] = &graphql.ArgumentConfig{Type: b.nonNegativeInt}
	args["last"] = &graphql.ArgumentConfig{Type: b.nonNegativeInt}
	args["after"] = &graphql.ArgumentConfig{Type: graphql.String}
	args["before"] = &graphql.ArgumentConfig{Type: graphql.String}
	return args
}

// rootQuery applies the where, orderBy, id and ids arguments to a query over
// t. Paging arguments are left to the caller.
func rootQuery(t *model.EntityType, args map[string]interface{}) (*queryable.Query, error) {
	q := queryable.From(t)

	exprs, err := parseWhere(args["where"])
	if err != nil {
		return nil, err
	}
	pred, err := planner.BuildWhere(t, exprs)
	if err != nil {
		return nil, err
	}
	q = q.Where(pred)

	if id, ok := args["id"]; ok && id != nil {
		pred, err := keyPredicate(t, planner.Equal, []string{fmt.Sprint(id)})
		if err != nil {
			return nil, err
		}
		q = q.Where(pred)
	}
	if ids, ok := args["ids"].([]interface{}); ok {
		values := stringList(ids)
		pred, err := keyPredicate(t, planner.In, values)
		if err != nil {
			return nil, err
		}
		q = q.Where(pred)
	}

	orders, err := planner.BuildOrder(t, parseOrderBy(args["orderBy"]))
	if err != nil {
		return nil, err
	}
	if len(orders) > 0 {
		q = q.OrderBy(orders...)
	}
	return q, nil
}

func keyPredicate(t *model.EntityType, op planner.Comparison, values []string) (sq.Sqlizer, error) {
	keys := t.Keys()
	if len(keys) != 1 {
		return nil, fmt.Errorf("%s does not have a single-column key", t.Name)
	}
	return planner.BuildWhere(t, []planner.WhereExpression{{Path: keys[0], Comparison: op, Value: values}})
}

func parseWhere(raw interface{}) ([]planner.WhereExpression, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]planner.WhereExpression, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("where expression must be an object")
		}
		e := planner.WhereExpression{}
		e.Path, _ = m["path"].(string)
		if c, ok := m["comparison"].(string); ok {
			e.Comparison = planner.Comparison(c)
		}
		if values, ok := m["value"].([]interface{}); ok {
			e.Value = stringList(values)
		} else if value, ok := m["value"].(string); ok {
			e.Value = []string{value}
		}
		e.Negate, _ = m["negate"].(bool)
		if c, ok := m["connector"].(string); ok {
			e.Connector = planner.Connector(c)
		}
		if group, ok := m["group"]; ok && group != nil {
			nested, err := parseWhere(group)
			if err != nil {
				return nil, err
			}
			e.Group = nested
		}
		if e.Path == "" && len(e.Group) == 0 {
			return nil, fmt.Errorf("where expression needs a path or a group")
		}
		out = append(out, e)
	}
	return out, nil
}

func parseOrderBy(raw interface{}) []planner.OrderBy {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]planner.OrderBy, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		o := planner.OrderBy{}
		o.Path, _ = m["path"].(string)
		o.Descending, _ = m["descending"].(bool)
		out = append(out, o)
	}
	return out
}

// stringList renders values as text; nulls are dropped.
func stringList(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func intArg(args map[string]interface{}, name string) *int {
	if v, ok := args[name].(int); ok {
		return &v
	}
	return nil
}

func stringArg(args map[string]interface{}, name string) *string {
	if v, ok := args[name].(string); ok {
		return &v
	}
	return nil
}

func connectionArgsFrom(args map[string]interface{}) connection.Args {
	return connection.Args{
		First:  intArg(args, "first"),
		After:  stringArg(args, "after"),
		Last:   intArg(args, "last"),
		Before: stringArg(args, "before"),
	}
}

// page applies skip and take to rows that were filtered in memory.
func page(items []*queryable.Entity, args map[string]interface{}) []*queryable.Entity {
	if skip := intArg(args, "skip"); skip != nil {
		if *skip >= len(items) {
			return []*queryable.Entity{}
		}
		items = items[*skip:]
	}
	if take := intArg(args, "take"); take != nil && *take < len(items) {
		items = items[:*take]
	}
	return items
}

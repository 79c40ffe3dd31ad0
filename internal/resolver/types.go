package resolver

import (
	"github.com/graphql-go/graphql"

	"entityql/internal/model"
	"entityql/internal/naming"
	"entityql/internal/planner"
	"entityql/internal/queryable"
)

// isInterface reports whether t is exposed as a GraphQL interface: values
// typed t may be rows of a derived type.
func isInterface(t *model.EntityType) bool {
	return t.Abstract || len(t.Derived()) > 0
}

// objectName names the object of a concrete type. A concrete type with
// descendants already uses its own name for the interface.
func objectName(t *model.EntityType) string {
	if len(t.Derived()) > 0 {
		return t.Name + "Entity"
	}
	return t.Name
}

func (b *SchemaBuilder) outputType(t *model.EntityType) graphql.Output {
	if isInterface(t) {
		return b.interfaceType(t)
	}
	return b.objectType(t)
}

func (b *SchemaBuilder) objectType(t *model.EntityType) *graphql.Object {
	if cached, ok := b.objects[t]; ok {
		return cached
	}
	var implements []*graphql.Interface
	for current := t; current != nil; current = current.Base {
		if isInterface(current) {
			implements = append(implements, b.interfaceType(current))
		}
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:       objectName(t),
		Interfaces: implements,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.entityFields(t)
		}),
	})
	b.objects[t] = obj
	return obj
}

func (b *SchemaBuilder) interfaceType(t *model.EntityType) *graphql.Interface {
	if cached, ok := b.interfaces[t]; ok {
		return cached
	}
	iface := graphql.NewInterface(graphql.InterfaceConfig{
		Name: t.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.entityFields(t)
		}),
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			e, ok := p.Value.(*queryable.Entity)
			if !ok || e == nil {
				return nil
			}
			return b.objects[e.Type()]
		},
	})
	b.interfaces[t] = iface
	return iface
}

// entityFields exposes the non-shadow properties and the navigations of t,
// inherited members included.
func (b *SchemaBuilder) entityFields(t *model.EntityType) graphql.Fields {
	fields := graphql.Fields{}
	for _, p := range t.Properties() {
		if p.Shadow {
			continue
		}
		var typ graphql.Output = b.scalarType(p.Kind)
		if !p.Nullable {
			typ = graphql.NewNonNull(typ)
		}
		fields[naming.ToFieldName(p.Name)] = &graphql.Field{
			Type:    typ,
			Resolve: propertyResolver(p),
		}
	}
	for _, nav := range t.Navigations() {
		var typ graphql.Output = b.outputType(nav.Target)
		if nav.IsCollection {
			typ = graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(typ)))
		}
		fields[naming.ToFieldName(nav.Name)] = &graphql.Field{
			Type:    typ,
			Resolve: b.navigationResolver(nav),
		}
	}
	return fields
}

func (b *SchemaBuilder) scalarType(kind model.Kind) graphql.Output {
	switch kind {
	case model.KindInt:
		return graphql.Int
	case model.KindFloat:
		return graphql.Float
	case model.KindBool:
		return graphql.Boolean
	case model.KindTime:
		return b.dateTime
	default:
		return graphql.String
	}
}

func (b *SchemaBuilder) pageInfoType() *graphql.Object {
	if b.pageInfo != nil {
		return b.pageInfo
	}
	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
			},
			"hasPreviousPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
			},
			"startCursor": &graphql.Field{
				Type: graphql.String,
			},
			"endCursor": &graphql.Field{
				Type: graphql.String,
			},
		},
	})
	return b.pageInfo
}

// connectionType builds the Connection type for an entity type (cached per type).
func (b *SchemaBuilder) connectionType(t *model.EntityType) *graphql.Object {
	if cached, ok := b.connections[t]; ok {
		return cached
	}
	node := b.outputType(t)
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: t.Name + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"node": &graphql.Field{
				Type: graphql.NewNonNull(node),
			},
		},
	})
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: t.Name + "Connection",
		Fields: graphql.Fields{
			"totalCount": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"edges": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
			},
			"items": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(node))),
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(b.pageInfoType()),
			},
		},
	})
	b.connections[t] = conn
	return conn
}

func (b *SchemaBuilder) whereInputType() *graphql.InputObject {
	if b.whereInput != nil {
		return b.whereInput
	}
	comparisons := graphql.EnumValueConfigMap{}
	for _, c := range planner.Comparisons {
		comparisons[string(c)] = &graphql.EnumValueConfig{Value: string(c)}
	}
	comparison := graphql.NewEnum(graphql.EnumConfig{
		Name:   "Comparison",
		Values: comparisons,
	})
	connector := graphql.NewEnum(graphql.EnumConfig{
		Name: "Connector",
		Values: graphql.EnumValueConfigMap{
			string(planner.And): &graphql.EnumValueConfig{Value: string(planner.And)},
			string(planner.Or):  &graphql.EnumValueConfig{Value: string(planner.Or)},
		},
		Description: "Joins an expression to the one after it",
	})

	var where *graphql.InputObject
	where = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        "WhereExpression",
		Description: "A comparison on a property path, or a parenthesized group of expressions",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			return graphql.InputObjectConfigFieldMap{
				"path":       &graphql.InputObjectFieldConfig{Type: graphql.String},
				"comparison": &graphql.InputObjectFieldConfig{Type: comparison},
				"value":      &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.String)},
				"negate":     &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
				"connector":  &graphql.InputObjectFieldConfig{Type: connector},
				"group":      &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(where))},
			}
		}),
	})
	b.whereInput = where
	return where
}

func (b *SchemaBuilder) orderByInputType() *graphql.InputObject {
	if b.orderByInput != nil {
		return b.orderByInput
	}
	b.orderByInput = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "OrderBy",
		Fields: graphql.InputObjectConfigFieldMap{
			"path":       &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"descending": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
		},
	})
	return b.orderByInput
}

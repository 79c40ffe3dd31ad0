// Package resolver exposes an entity model as a GraphQL schema. Root fields
// plan their loads through the planner, execute them with a queryable
// executor and apply registered row filters at every level of the result.
package resolver

import (
	"context"

	"github.com/graphql-go/graphql"

	"entityql/internal/dbexec"
	"entityql/internal/diagnostics"
	"entityql/internal/filters"
	"entityql/internal/model"
	"entityql/internal/naming"
	"entityql/internal/planner"
	"entityql/internal/queryable"
	"entityql/internal/scalars"
)

// NavigationLoader replaces the default loading of one navigation. Reference
// navigations use the first returned entity. Filters still apply to the
// result.
type NavigationLoader func(ctx context.Context, owner *queryable.Entity) ([]*queryable.Entity, error)

// SchemaBuilder collects root fields and builds an executable schema. It is
// not safe for concurrent use; the built schema is.
type SchemaBuilder struct {
	model       *model.Model
	exec        dbexec.QueryExecutor
	planner     *planner.Planner
	executor    *queryable.Executor
	filters     *filters.Registry
	namer       *naming.Namer
	maxPageSize int

	objects     map[*model.EntityType]*graphql.Object
	interfaces  map[*model.EntityType]*graphql.Interface
	connections map[*model.EntityType]*graphql.Object
	loaders     map[*model.Navigation]NavigationLoader
	queryFields graphql.Fields

	whereInput     *graphql.InputObject
	orderByInput   *graphql.InputObject
	pageInfo       *graphql.Object
	nonNegativeInt *graphql.Scalar
	dateTime       *graphql.Scalar
}

// Option configures a SchemaBuilder.
type Option func(*SchemaBuilder)

// WithFilters applies the filters of r to every field. Unless WithPlanner is
// also given, the default planner loads what those filters read.
func WithFilters(r *filters.Registry) Option {
	return func(b *SchemaBuilder) { b.filters = r }
}

// WithPlanner replaces the default planner. The planner should merge the
// requirements of the same filter registry.
func WithPlanner(p *planner.Planner) Option {
	return func(b *SchemaBuilder) { b.planner = p }
}

// WithExecutor replaces the default executor.
func WithExecutor(x *queryable.Executor) Option {
	return func(b *SchemaBuilder) { b.executor = x }
}

// WithNamer sets the namer used for root field names.
func WithNamer(n *naming.Namer) Option {
	return func(b *SchemaBuilder) { b.namer = n }
}

// WithMaxPageSize bounds connection pages requested without first or last.
func WithMaxPageSize(n int) Option {
	return func(b *SchemaBuilder) { b.maxPageSize = n }
}

// NewSchemaBuilder creates a builder over m. exec runs statements for
// requests whose context carries no session.
func NewSchemaBuilder(m *model.Model, exec dbexec.QueryExecutor, opts ...Option) *SchemaBuilder {
	b := &SchemaBuilder{
		model:          m,
		exec:           exec,
		namer:          naming.Default(),
		objects:        make(map[*model.EntityType]*graphql.Object),
		interfaces:     make(map[*model.EntityType]*graphql.Interface),
		connections:    make(map[*model.EntityType]*graphql.Object),
		loaders:        make(map[*model.Navigation]NavigationLoader),
		queryFields:    graphql.Fields{},
		nonNegativeInt: scalars.NonNegativeInt(),
		dateTime:       scalars.DateTime(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.filters == nil {
		b.filters = filters.NewRegistry(m)
	}
	if b.planner == nil {
		b.planner = planner.New(m, planner.WithRequirements(b.filters))
	}
	if b.executor == nil {
		b.executor = queryable.NewExecutor(exec)
	}
	return b
}

func (b *SchemaBuilder) lookup(typeName string) (*model.EntityType, error) {
	t, ok := b.model.Type(typeName)
	if !ok {
		return nil, diagnostics.Configf(typeName, "", "unknown entity type %s", typeName)
	}
	return t, nil
}

func (b *SchemaBuilder) addRootField(name string, t *model.EntityType, field *graphql.Field) error {
	if _, exists := b.queryFields[name]; exists {
		return diagnostics.Configf(t.Name, "", "root field %s is already registered", name)
	}
	b.queryFields[name] = field
	return nil
}

// AddQueryField adds a root list field over typeName with where, orderBy,
// skip and take arguments, plus id and ids for single-column keys.
func (b *SchemaBuilder) AddQueryField(name, typeName string) error {
	t, err := b.lookup(typeName)
	if err != nil {
		return err
	}
	return b.addRootField(name, t, &graphql.Field{
		Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.outputType(t)))),
		Args:    b.listArgs(t),
		Resolve: b.listResolver(t, name),
	})
}

// AddSingleField adds a root field returning the typeName entity with the
// given key. A non-nullable field reports a NotFoundError when no visible row
// matches.
func (b *SchemaBuilder) AddSingleField(name, typeName string, nullable bool) error {
	t, err := b.lookup(typeName)
	if err != nil {
		return err
	}
	if len(t.Keys()) != 1 {
		return diagnostics.Configf(t.Name, "", "single-result field %s needs a single-column key", name)
	}
	var typ graphql.Output = b.outputType(t)
	if !nullable {
		typ = graphql.NewNonNull(typ)
	}
	return b.addRootField(name, t, &graphql.Field{
		Type: typ,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: b.singleResolver(t, name, nullable),
	})
}

// AddQueryConnectionField adds a root connection field over typeName with
// first, after, last and before plus where and orderBy.
func (b *SchemaBuilder) AddQueryConnectionField(name, typeName string) error {
	t, err := b.lookup(typeName)
	if err != nil {
		return err
	}
	return b.addRootField(name, t, &graphql.Field{
		Type:    graphql.NewNonNull(b.connectionType(t)),
		Args:    b.connectionArgs(),
		Resolve: b.connectionResolver(t, name),
	})
}

// AddNavigationField overrides how navigation of typeName is loaded. It must
// be called before Build.
func (b *SchemaBuilder) AddNavigationField(typeName, navigation string, load NavigationLoader) error {
	t, err := b.lookup(typeName)
	if err != nil {
		return err
	}
	nav := t.FindNavigation(navigation)
	if nav == nil {
		return diagnostics.Configf(t.Name, navigation, "%s has no navigation %s", t.Name, navigation)
	}
	if load == nil {
		return diagnostics.Configf(t.Name, nav.Name, "navigation loader is nil")
	}
	b.loaders[nav] = load
	return nil
}

// AutoRegister adds a list, a connection and, for single-column keys, a
// single-result root field for every entity type.
// Example: Child -> children, childrenConnection, child
func (b *SchemaBuilder) AutoRegister() error {
	for _, t := range b.model.Types() {
		list := b.namer.ListFieldName(t.Name)
		if err := b.AddQueryField(list, t.Name); err != nil {
			return err
		}
		if err := b.AddQueryConnectionField(list+"Connection", t.Name); err != nil {
			return err
		}
		single := naming.ToFieldName(t.Name)
		if len(t.Keys()) == 1 && single != list {
			if err := b.AddSingleField(single, t.Name, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build constructs the schema. Every entity type is part of it, whether or
// not a root field reaches it.
func (b *SchemaBuilder) Build() (graphql.Schema, error) {
	queryFields := graphql.Fields{}
	for name, field := range b.queryFields {
		queryFields[name] = field
	}

	// If no root fields exist, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No entity types registered", nil
			},
			Description: "Placeholder field when no root fields are registered",
		}
	}

	var types []graphql.Type
	for _, t := range b.model.Types() {
		if isInterface(t) {
			types = append(types, b.interfaceType(t))
		}
		if !t.Abstract {
			types = append(types, b.objectType(t))
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
		Types: types,
	})
}

package model

import (
	"errors"
	"fmt"
	"strings"

	"entityql/internal/naming"
)

// PropertyOption adjusts a declared property.
type PropertyOption func(*Property)

// Nullable marks the property as accepting NULL.
func Nullable() PropertyOption {
	return func(p *Property) { p.Nullable = true }
}

// ReadOnly marks the property as computed by the database.
func ReadOnly() PropertyOption {
	return func(p *Property) { p.ReadOnly = true }
}

// Shadow hides the property from the exposed field set.
func Shadow() PropertyOption {
	return func(p *Property) { p.Shadow = true }
}

// Column overrides the column name derived from the property name.
func Column(name string) PropertyOption {
	return func(p *Property) { p.Column = name }
}

type navigationSpec struct {
	declaring    string
	name         string
	target       string
	isCollection bool
	foreignKeys  []string
	principal    []string
}

type entitySpec struct {
	name          string
	table         string
	abstract      bool
	base          string
	discriminator string
	value         string
	keys          []string
	properties    []*Property
}

// Builder declares entity types and produces an immutable Model.
type Builder struct {
	entities    []*entitySpec
	navigations []navigationSpec
	errs        []error
}

// NewBuilder returns an empty model builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// EntityBuilder declares members of one entity type.
type EntityBuilder struct {
	b    *Builder
	spec *entitySpec
}

// Entity declares an entity type mapped to table. Derived types may pass an
// empty table; they share the table of their hierarchy root.
func (b *Builder) Entity(name, table string) *EntityBuilder {
	spec := &entitySpec{name: name, table: table}
	b.entities = append(b.entities, spec)
	return &EntityBuilder{b: b, spec: spec}
}

// Property declares a scalar property. The column defaults to the snake_case
// form of the property name.
func (e *EntityBuilder) Property(name string, kind Kind, opts ...PropertyOption) *EntityBuilder {
	p := &Property{Name: name, Column: naming.ToSnakeCase(name), Kind: kind}
	for _, opt := range opts {
		opt(p)
	}
	e.spec.properties = append(e.spec.properties, p)
	return e
}

// Computed declares a read-only property computed by the database.
func (e *EntityBuilder) Computed(name string, kind Kind, opts ...PropertyOption) *EntityBuilder {
	return e.Property(name, kind, append(opts, ReadOnly())...)
}

// Key sets the primary key properties.
func (e *EntityBuilder) Key(names ...string) *EntityBuilder {
	e.spec.keys = append([]string(nil), names...)
	return e
}

// Abstract marks the type as abstract. Abstract types are never materialized.
func (e *EntityBuilder) Abstract() *EntityBuilder {
	e.spec.abstract = true
	return e
}

// Discriminator sets the column distinguishing types of the hierarchy rooted here.
func (e *EntityBuilder) Discriminator(column string) *EntityBuilder {
	e.spec.discriminator = column
	return e
}

// Derives makes the type a member of the base type's hierarchy.
func (e *EntityBuilder) Derives(base, discriminatorValue string) *EntityBuilder {
	e.spec.base = base
	e.spec.value = discriminatorValue
	return e
}

// HasDiscriminatorValue sets the discriminator value of a hierarchy root.
func (e *EntityBuilder) HasDiscriminatorValue(value string) *EntityBuilder {
	e.spec.value = value
	return e
}

// Reference declares a single-valued navigation backed by foreign key
// properties on this type.
func (e *EntityBuilder) Reference(name, target string, foreignKeys ...string) *EntityBuilder {
	e.b.navigations = append(e.b.navigations, navigationSpec{
		declaring: e.spec.name, name: name, target: target, foreignKeys: foreignKeys,
	})
	return e
}

// Collection declares a collection navigation backed by foreign key
// properties on the target type.
func (e *EntityBuilder) Collection(name, target string, foreignKeys ...string) *EntityBuilder {
	e.b.navigations = append(e.b.navigations, navigationSpec{
		declaring: e.spec.name, name: name, target: target, isCollection: true, foreignKeys: foreignKeys,
	})
	return e
}

// PrincipalKeys overrides the principal key properties of the most recently
// declared navigation. They default to the primary key of the principal type.
func (e *EntityBuilder) PrincipalKeys(names ...string) *EntityBuilder {
	if len(e.b.navigations) == 0 {
		e.b.errs = append(e.b.errs, fmt.Errorf("%s: PrincipalKeys without a navigation", e.spec.name))
		return e
	}
	e.b.navigations[len(e.b.navigations)-1].principal = names
	return e
}

// Build validates the declarations and produces the model.
func (b *Builder) Build() (*Model, error) {
	errs := append([]error(nil), b.errs...)
	m := &Model{byName: make(map[string]*EntityType, len(b.entities))}

	for _, spec := range b.entities {
		key := strings.ToLower(spec.name)
		if _, exists := m.byName[key]; exists {
			errs = append(errs, fmt.Errorf("entity type %s declared twice", spec.name))
			continue
		}
		t := &EntityType{
			Name:               spec.name,
			Table:              spec.table,
			Abstract:           spec.abstract,
			DiscriminatorValue: spec.value,
			discriminator:      spec.discriminator,
			keys:               spec.keys,
			properties:         spec.properties,
		}
		for _, p := range t.properties {
			p.Column = strings.TrimSpace(p.Column)
		}
		m.types = append(m.types, t)
		m.byName[key] = t
	}

	for _, spec := range b.entities {
		if spec.base == "" {
			continue
		}
		t := m.byName[strings.ToLower(spec.name)]
		base, ok := m.byName[strings.ToLower(spec.base)]
		if !ok {
			errs = append(errs, fmt.Errorf("entity type %s derives from unknown type %s", spec.name, spec.base))
			continue
		}
		t.Base = base
		base.derived = append(base.derived, t)
	}

	// Every other check walks base chains, so a cycle ends the build here.
	var cycles []error
	for _, t := range m.types {
		if err := checkBaseChain(t); err != nil {
			cycles = append(cycles, err)
		}
	}
	if len(cycles) > 0 {
		return nil, errors.Join(append(errs, cycles...)...)
	}

	for _, t := range m.types {
		if err := validateType(t); err != nil {
			errs = append(errs, err)
		}
	}

	for _, spec := range b.navigations {
		nav, err := resolveNavigation(m, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		nav.DeclaringType.navigations = append(nav.DeclaringType.navigations, nav)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	linkInverses(m)
	m.navigations = BuildNavigationMap(m)
	m.keyNames = make(map[string][]string, len(m.types))
	for _, t := range m.types {
		m.keyNames[t.Name] = t.Keys()
	}
	return m, nil
}

// checkBaseChain reports a base chain of t that never reaches a root, whether
// or not t itself is part of the cycle.
func checkBaseChain(t *EntityType) error {
	visited := map[*EntityType]struct{}{t: {}}
	for current := t.Base; current != nil; current = current.Base {
		if current == t {
			return fmt.Errorf("entity type %s inherits from itself", t.Name)
		}
		if _, seen := visited[current]; seen {
			return fmt.Errorf("entity type %s derives from %s, which is part of an inheritance cycle", t.Name, current.Name)
		}
		visited[current] = struct{}{}
	}
	return nil
}

func validateType(t *EntityType) error {
	if t.Base != nil {
		if len(t.keys) > 0 {
			return fmt.Errorf("entity type %s: keys must be declared on the hierarchy root", t.Name)
		}
		root := t.Root()
		if t.Table != "" && t.Table != root.Table {
			return fmt.Errorf("entity type %s: derived types share table %s", t.Name, root.Table)
		}
		t.Table = root.Table
		if root.discriminator == "" {
			return fmt.Errorf("entity type %s: hierarchy %s has no discriminator column", t.Name, root.Name)
		}
		if !t.Abstract && t.DiscriminatorValue == "" {
			return fmt.Errorf("entity type %s: concrete derived types need a discriminator value", t.Name)
		}
		return nil
	}
	if t.Table == "" {
		return fmt.Errorf("entity type %s has no table", t.Name)
	}
	if len(t.keys) == 0 {
		return fmt.Errorf("entity type %s has no key", t.Name)
	}
	for _, k := range t.keys {
		if t.FindProperty(k) == nil {
			return fmt.Errorf("entity type %s: key %s is not a property", t.Name, k)
		}
	}
	return nil
}

func resolveNavigation(m *Model, spec navigationSpec) (*Navigation, error) {
	declaring, ok := m.byName[strings.ToLower(spec.declaring)]
	if !ok {
		return nil, fmt.Errorf("navigation %s declared on unknown type %s", spec.name, spec.declaring)
	}
	target, ok := m.byName[strings.ToLower(spec.target)]
	if !ok {
		return nil, fmt.Errorf("navigation %s.%s targets unknown type %s", spec.declaring, spec.name, spec.target)
	}
	if declaring.FindProperty(spec.name) != nil {
		return nil, fmt.Errorf("navigation %s.%s collides with a property", spec.declaring, spec.name)
	}
	if existing := declaring.FindNavigation(spec.name); existing != nil {
		return nil, fmt.Errorf("navigation %s.%s declared twice", spec.declaring, spec.name)
	}
	if len(spec.foreignKeys) == 0 {
		return nil, fmt.Errorf("navigation %s.%s has no foreign key", spec.declaring, spec.name)
	}

	dependent, principal := declaring, target
	if spec.isCollection {
		dependent, principal = target, declaring
	}
	principalKeys := spec.principal
	if len(principalKeys) == 0 {
		principalKeys = principal.Keys()
	}
	if len(principalKeys) != len(spec.foreignKeys) {
		return nil, fmt.Errorf("navigation %s.%s: %d foreign keys for %d principal keys",
			spec.declaring, spec.name, len(spec.foreignKeys), len(principalKeys))
	}
	fks := make([]string, len(spec.foreignKeys))
	for i, fk := range spec.foreignKeys {
		p := dependent.FindProperty(fk)
		if p == nil {
			return nil, fmt.Errorf("navigation %s.%s: foreign key %s is not a property of %s",
				spec.declaring, spec.name, fk, dependent.Name)
		}
		fks[i] = p.Name
	}
	pks := make([]string, len(principalKeys))
	for i, pk := range principalKeys {
		p := principal.FindProperty(pk)
		if p == nil {
			return nil, fmt.Errorf("navigation %s.%s: principal key %s is not a property of %s",
				spec.declaring, spec.name, pk, principal.Name)
		}
		pks[i] = p.Name
	}
	return &Navigation{
		Name:          spec.name,
		DeclaringType: declaring,
		Target:        target,
		IsCollection:  spec.isCollection,
		ForeignKeys:   fks,
		PrincipalKeys: pks,
	}, nil
}

// linkInverses pairs each collection with the reference walking the same
// foreign key back to a type assignable to the collection's declaring type.
func linkInverses(m *Model) {
	for _, t := range m.types {
		for _, collection := range t.navigations {
			if !collection.IsCollection || collection.Inverse != nil {
				continue
			}
			for _, reference := range collection.Target.Navigations() {
				if reference.IsCollection || reference.Inverse != nil {
					continue
				}
				if !reference.Target.IsAssignableFrom(collection.DeclaringType) {
					continue
				}
				if !sameNames(reference.ForeignKeys, collection.ForeignKeys) {
					continue
				}
				collection.Inverse = reference
				reference.Inverse = collection
				break
			}
		}
	}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Package model describes the mapped entity model: entity types, their scalar
// properties, keys, table-per-hierarchy inheritance and navigation properties.
// A Model is immutable once built and safe for concurrent reads.
package model

import (
	"sort"
	"strings"
)

// Property is a scalar member of an entity type backed by one column.
type Property struct {
	Name     string
	Column   string
	Kind     Kind
	Nullable bool
	// ReadOnly marks computed or generated columns that cannot be assigned
	// in a synthesized shape.
	ReadOnly bool
	// Shadow properties exist in the mapping but are not exposed as fields.
	Shadow bool
}

// Navigation is a relationship-typed member connecting an entity to one or
// many related entities.
//
// For reference navigations the declaring type is the dependent side and
// ForeignKeys name its properties; PrincipalKeys name properties of Target.
// For collection navigations Target is the dependent side and ForeignKeys
// name Target properties; PrincipalKeys name properties of the declaring type.
type Navigation struct {
	Name          string
	DeclaringType *EntityType
	Target        *EntityType
	IsCollection  bool
	ForeignKeys   []string
	PrincipalKeys []string
	// Inverse is the navigation on Target that walks the same foreign key in
	// the other direction, when one is declared.
	Inverse *Navigation
}

// Path returns the navigation qualified by its declaring type.
func (n *Navigation) Path() string {
	return n.DeclaringType.Name + "." + n.Name
}

// EntityType is a mapped entity. Types in one hierarchy share the table of
// the hierarchy root and are told apart by the discriminator column.
type EntityType struct {
	Name               string
	Table              string
	Abstract           bool
	Base               *EntityType
	DiscriminatorValue string

	discriminator string
	keys          []string
	properties    []*Property
	navigations   []*Navigation
	derived       []*EntityType
}

// Root returns the top of the inheritance hierarchy.
func (t *EntityType) Root() *EntityType {
	root := t
	for root.Base != nil {
		root = root.Base
	}
	return root
}

// DiscriminatorColumn returns the hierarchy discriminator column, or "" when
// the hierarchy is a single type.
func (t *EntityType) DiscriminatorColumn() string {
	return t.Root().discriminator
}

// Keys returns the primary key property names, declared on the hierarchy root.
func (t *EntityType) Keys() []string {
	return t.Root().keys
}

// Properties returns declared and inherited properties, base members first.
func (t *EntityType) Properties() []*Property {
	if t.Base == nil {
		return t.properties
	}
	inherited := t.Base.Properties()
	out := make([]*Property, 0, len(inherited)+len(t.properties))
	out = append(out, inherited...)
	return append(out, t.properties...)
}

// DeclaredProperties returns only the properties declared on t.
func (t *EntityType) DeclaredProperties() []*Property {
	return t.properties
}

// Navigations returns declared and inherited navigations, base members first.
func (t *EntityType) Navigations() []*Navigation {
	if t.Base == nil {
		return t.navigations
	}
	inherited := t.Base.Navigations()
	out := make([]*Navigation, 0, len(inherited)+len(t.navigations))
	out = append(out, inherited...)
	return append(out, t.navigations...)
}

// FindProperty looks up a property by name, case-insensitively, walking base types.
func (t *EntityType) FindProperty(name string) *Property {
	for current := t; current != nil; current = current.Base {
		for _, p := range current.properties {
			if strings.EqualFold(p.Name, name) {
				return p
			}
		}
	}
	return nil
}

// FindNavigation looks up a navigation by name, case-insensitively, walking base types.
func (t *EntityType) FindNavigation(name string) *Navigation {
	for current := t; current != nil; current = current.Base {
		for _, n := range current.navigations {
			if strings.EqualFold(n.Name, name) {
				return n
			}
		}
	}
	return nil
}

// FindPropertyInHierarchy looks up a property on t, its base types, or any
// type derived from t. Rows read through a base type may belong to a derived
// type, so members of derived types are reachable through it.
func (t *EntityType) FindPropertyInHierarchy(name string) *Property {
	if p := t.FindProperty(name); p != nil {
		return p
	}
	for _, d := range t.derived {
		if p := d.FindPropertyInHierarchy(name); p != nil {
			return p
		}
	}
	return nil
}

// FindNavigationInHierarchy is FindPropertyInHierarchy for navigations.
func (t *EntityType) FindNavigationInHierarchy(name string) *Navigation {
	if n := t.FindNavigation(name); n != nil {
		return n
	}
	for _, d := range t.derived {
		if n := d.FindNavigationInHierarchy(name); n != nil {
			return n
		}
	}
	return nil
}

// IsAssignableFrom reports whether other is t or derives from t.
func (t *EntityType) IsAssignableFrom(other *EntityType) bool {
	for current := other; current != nil; current = current.Base {
		if current == t {
			return true
		}
	}
	return false
}

// Derived returns the types that directly derive from t.
func (t *EntityType) Derived() []*EntityType {
	return t.derived
}

// ConcreteTypes returns t (when concrete) and every concrete descendant.
func (t *EntityType) ConcreteTypes() []*EntityType {
	var out []*EntityType
	var walk func(*EntityType)
	walk = func(current *EntityType) {
		if !current.Abstract {
			out = append(out, current)
		}
		for _, d := range current.derived {
			walk(d)
		}
	}
	walk(t)
	return out
}

// HierarchyProperties returns the properties of t and of every descendant, in
// hierarchy order and without duplicates. Rows of a TPH table can belong to
// any descendant, so full-entity loads read all of them.
func (t *EntityType) HierarchyProperties() []*Property {
	seen := make(map[*Property]struct{})
	var out []*Property
	add := func(props []*Property) {
		for _, p := range props {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	add(t.Properties())
	var walk func(*EntityType)
	walk = func(current *EntityType) {
		for _, d := range current.derived {
			add(d.properties)
			walk(d)
		}
	}
	walk(t)
	return out
}

// DiscriminatorValues returns the discriminator values of every concrete type
// assignable to t.
func (t *EntityType) DiscriminatorValues() []string {
	var values []string
	for _, c := range t.ConcreteTypes() {
		if c.DiscriminatorValue != "" {
			values = append(values, c.DiscriminatorValue)
		}
	}
	return values
}

// TypeForDiscriminator returns the concrete type assignable to t carrying the
// given discriminator value.
func (t *EntityType) TypeForDiscriminator(value string) (*EntityType, bool) {
	for _, c := range t.ConcreteTypes() {
		if c.DiscriminatorValue == value {
			return c, true
		}
	}
	return nil, false
}

// NavigationMap lists the one-hop navigations of every entity type,
// inherited ones included.
type NavigationMap map[*EntityType][]*Navigation

// Model is the full set of mapped entity types.
type Model struct {
	types       []*EntityType
	byName      map[string]*EntityType
	navigations NavigationMap
	keyNames    map[string][]string
}

// Types returns the entity types in declaration order.
func (m *Model) Types() []*EntityType {
	return m.types
}

// Type finds an entity type by name, case-insensitively.
func (m *Model) Type(name string) (*EntityType, bool) {
	t, ok := m.byName[strings.ToLower(name)]
	return t, ok
}

// Navigations returns the cached navigation list for t.
func (m *Model) Navigations(t *EntityType) []*Navigation {
	return m.navigations[t]
}

// KeyNames returns primary key property names by entity type name.
func (m *Model) KeyNames() map[string][]string {
	return m.keyNames
}

// BuildNavigationMap walks the model once and returns the navigation list of
// every entity type. The result is not transitive: each entry holds only the
// navigations a value of that type exposes directly.
func BuildNavigationMap(m *Model) NavigationMap {
	out := make(NavigationMap, len(m.types))
	for _, t := range m.types {
		navs := t.Navigations()
		list := make([]*Navigation, len(navs))
		copy(list, navs)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Name < list[j].Name
		})
		out[t] = list
	}
	return out
}

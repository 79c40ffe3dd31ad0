package planner

import (
	"strings"

	"entityql/internal/model"
	"entityql/internal/projection"
	"entityql/internal/queryable"
)

// SelectBuilder synthesizes narrowed shapes from requirement trees.
type SelectBuilder struct{}

// TryBuild builds a shape of root reading only the requested scalars, the
// structural foreign keys and the key properties, with requested
// navigations populated by their own shapes. keyNames maps entity type names
// to key property names; types missing from it use their model keys.
//
// The rules apply in order: an abstract root fails, an empty request fails,
// any requested read-only or derived-only property fails. A navigation whose
// target cannot be narrowed is loaded as full entities, except that
// navigations to abstract types are left out and reported in Dropped.
func (SelectBuilder) TryBuild(root *model.EntityType, info *projection.FieldProjectionInfo, keyNames map[string][]string) Outcome {
	if root.Abstract {
		return Unbuildable(Reason{Kind: ReasonAbstractType, Type: root.Name})
	}
	if info == nil || info.IsEmpty() {
		return Unbuildable(Reason{Kind: ReasonNothingRequested, Type: root.Name})
	}

	for _, name := range info.Scalars.Sorted() {
		p := root.FindProperty(name)
		if p == nil {
			return Unbuildable(Reason{Kind: ReasonDerivedMember, Type: root.Name, Member: name})
		}
		if p.ReadOnly {
			return Unbuildable(Reason{Kind: ReasonReadOnlyProperty, Type: root.Name, Member: p.Name})
		}
	}
	for _, name := range info.ForeignKeys.Sorted() {
		if root.FindProperty(name) == nil {
			return Unbuildable(Reason{Kind: ReasonDerivedMember, Type: root.Name, Member: name})
		}
	}

	shape := &queryable.Shape{Type: root}
	shape.Columns = requiredColumns(root, info, keysFor(root, keyNames))
	shape.Navigations, shape.Dropped = buildNavigations(info, keyNames)
	return Built(shape)
}

func keysFor(t *model.EntityType, keyNames map[string][]string) []string {
	if keys, ok := keyNames[t.Name]; ok {
		return keys
	}
	return t.Keys()
}

// requiredColumns lists keys, scalars and foreign keys in property order.
func requiredColumns(t *model.EntityType, info *projection.FieldProjectionInfo, keys []string) []string {
	required := info.Scalars.Union(info.ForeignKeys)
	required.AddAll(projection.NewPathSet(keys...))
	out := make([]string, 0, len(required))
	for _, p := range t.Properties() {
		if required.Contains(p.Name) {
			out = append(out, p.Name)
		}
	}
	return out
}

func buildNavigations(info *projection.FieldProjectionInfo, keyNames map[string][]string) ([]queryable.ShapeNavigation, []string) {
	var navs []queryable.ShapeNavigation
	var dropped []string
	for _, np := range info.SortedNavigations() {
		name := np.Navigation.Name
		if np.Target.Abstract {
			dropped = append(dropped, name)
			continue
		}
		child := SelectBuilder{}.TryBuild(np.Target, np.Child, keyNames)
		shape, ok := child.Shape()
		if !ok {
			nested, nestedDropped := buildNavigations(np.Child, keyNames)
			shape = queryable.FullShape(np.Target, nested...)
			shape.Dropped = nestedDropped
		}
		for _, d := range shape.Dropped {
			dropped = append(dropped, name+"."+d)
		}
		navs = append(navs, queryable.ShapeNavigation{Navigation: np.Navigation, Shape: shape})
	}
	return navs, dropped
}

// Describe renders the columns of a built shape as Type.Property paths, for
// logs and assertions.
func Describe(shape *queryable.Shape) []string {
	var out []string
	var walk func(s *queryable.Shape)
	walk = func(s *queryable.Shape) {
		if s.All {
			out = append(out, s.Type.Name+".*")
		}
		for _, c := range s.Columns {
			out = append(out, s.Type.Name+"."+c)
		}
		for _, n := range s.Navigations {
			walk(n.Shape)
		}
	}
	walk(shape)
	return out
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

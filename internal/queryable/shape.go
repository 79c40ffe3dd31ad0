package queryable

import (
	"strings"

	"entityql/internal/model"
)

// Shape is a narrowed projection of an entity type: the property columns to
// read and the navigations to populate, each with its own shape.
//
// A shape with All set reads every column of its type. It is used for
// navigations whose target could not be narrowed.
type Shape struct {
	Type        *model.EntityType
	All         bool
	Columns     []string
	Navigations []ShapeNavigation
	// Dropped lists dotted paths of navigations left out because their
	// target type is abstract.
	Dropped []string
}

// ShapeNavigation is a navigation populated by a shape.
type ShapeNavigation struct {
	Navigation *model.Navigation
	Shape      *Shape
}

// FullShape reads every column of t and populates navs.
func FullShape(t *model.EntityType, navs ...ShapeNavigation) *Shape {
	return &Shape{Type: t, All: true, Navigations: navs}
}

// Properties returns the properties read by the shape, in property order.
func (s *Shape) Properties() []*model.Property {
	if s.All {
		return s.Type.HierarchyProperties()
	}
	out := make([]*model.Property, 0, len(s.Columns))
	for _, name := range s.Columns {
		if p := s.Type.FindProperty(name); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Has reports whether the shape reads property name.
func (s *Shape) Has(name string) bool {
	if s.All {
		return s.Type.FindProperty(name) != nil
	}
	for _, c := range s.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Navigation returns the nested navigation shape by name.
func (s *Shape) Navigation(name string) (ShapeNavigation, bool) {
	for _, n := range s.Navigations {
		if strings.EqualFold(n.Navigation.Name, name) {
			return n, true
		}
	}
	return ShapeNavigation{}, false
}

// String renders the shape as a compact member list, for logs and tests.
func (s *Shape) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *Shape) write(b *strings.Builder) {
	b.WriteString(s.Type.Name)
	b.WriteString("{")
	parts := make([]string, 0, len(s.Columns)+len(s.Navigations))
	if s.All {
		parts = append(parts, "*")
	} else {
		parts = append(parts, s.Columns...)
	}
	for _, n := range s.Navigations {
		var nb strings.Builder
		nb.WriteString(n.Navigation.Name)
		nb.WriteString(": ")
		n.Shape.write(&nb)
		parts = append(parts, nb.String())
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("}")
}

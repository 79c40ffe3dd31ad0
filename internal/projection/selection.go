package projection

import (
	"strings"

	"github.com/graphql-go/graphql/language/ast"

	"entityql/internal/model"
)

// connectionWrappers are selection fields that wrap entities without being
// members of them.
var connectionWrappers = map[string]struct{}{
	"edges": {},
	"node":  {},
	"nodes": {},
	"items": {},
}

// FromSelection builds the requirement tree of a GraphQL field resolving to
// entities of type t. It follows inline fragments, named fragments and the
// edges/node/items wrappers of connection fields. Requesting a navigation
// also requires the foreign keys that back it.
func FromSelection(t *model.EntityType, field *ast.Field, fragments map[string]ast.Definition) *FieldProjectionInfo {
	info := New(t)
	if field == nil || field.SelectionSet == nil {
		return info
	}
	visited := make(map[string]struct{})

	var collect func(node *FieldProjectionInfo, selections []ast.Selection)
	collect = func(node *FieldProjectionInfo, selections []ast.Selection) {
		for _, selection := range selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if sel.Name == nil {
					continue
				}
				name := sel.Name.Value
				if strings.HasPrefix(name, "__") {
					continue
				}
				if prop, nav := resolveMember(node.Type, name); nav != nil {
					child := node.AddNavigation(nav)
					if sel.SelectionSet != nil {
						collect(child, sel.SelectionSet.Selections)
					}
					continue
				} else if prop != nil {
					node.AddScalar(prop.Name)
					continue
				}
				if _, ok := connectionWrappers[name]; ok && sel.SelectionSet != nil {
					collect(node, sel.SelectionSet.Selections)
				}
			case *ast.InlineFragment:
				if sel.SelectionSet != nil {
					collect(node, sel.SelectionSet.Selections)
				}
			case *ast.FragmentSpread:
				if fragments == nil || sel.Name == nil {
					continue
				}
				name := sel.Name.Value
				if _, seen := visited[name]; seen {
					continue
				}
				visited[name] = struct{}{}
				def, ok := fragments[name]
				if !ok {
					continue
				}
				fragment, ok := def.(*ast.FragmentDefinition)
				if !ok || fragment.SelectionSet == nil {
					continue
				}
				collect(node, fragment.SelectionSet.Selections)
				delete(visited, name)
			}
		}
	}
	collect(info, field.SelectionSet.Selections)
	return info
}

// resolveMember finds an exposed member on t or, for fields selected through
// a type condition, on one of its descendants.
func resolveMember(t *model.EntityType, name string) (*model.Property, *model.Navigation) {
	if nav := t.FindNavigation(name); nav != nil {
		return nil, nav
	}
	if prop := t.FindProperty(name); prop != nil && !prop.Shadow {
		return prop, nil
	}
	for _, d := range t.Derived() {
		if prop, nav := resolveMember(d, name); prop != nil || nav != nil {
			return prop, nav
		}
	}
	return nil, nil
}

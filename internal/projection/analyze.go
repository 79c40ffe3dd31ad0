package projection

import (
	"strings"

	"entityql/internal/diagnostics"
	"entityql/internal/expr"
	"entityql/internal/model"
)

// AbstractNavigationAccess records that a projection read a member through a
// navigation whose declared target type is abstract.
type AbstractNavigationAccess struct {
	// Path is the dotted path up to and including the navigation.
	Path          string
	Navigation    string
	DeclaringType string
	TargetType    string
}

// Analysis is the result of analyzing a projection expression.
type Analysis struct {
	// Paths holds the dotted member paths read from the root entity.
	Paths            PathSet
	AbstractAccesses []AbstractNavigationAccess
	// Identity is set when the projection is the entity itself. Paths is
	// then empty: no narrowing information is available.
	Identity bool
}

// Analyze walks e and records every member chain rooted at the entity as a
// dotted path using the model's member names. Collection navigations are
// unwrapped to their element type. Members that do not exist are reported as
// configuration errors.
func Analyze(root *model.EntityType, e expr.Expr) (Analysis, error) {
	out := Analysis{Paths: NewPathSet()}
	if e == nil || expr.IsIdentity(e) {
		out.Identity = true
		return out, nil
	}

	seen := make(map[string]struct{})
	var visit func(expr.Expr) error
	visit = func(node expr.Expr) error {
		if chain, ok := expr.MemberChain(node); ok {
			path, accesses, err := resolveChain(root, chain)
			if err != nil {
				return err
			}
			out.Paths.Add(path)
			for _, a := range accesses {
				if _, dup := seen[strings.ToLower(a.Path)]; dup {
					continue
				}
				seen[strings.ToLower(a.Path)] = struct{}{}
				out.AbstractAccesses = append(out.AbstractAccesses, a)
			}
			return nil
		}
		switch n := node.(type) {
		case expr.Member:
			return visit(n.Target)
		case *expr.Member:
			return visit(n.Target)
		case expr.Conditional:
			for _, child := range []expr.Expr{n.Test, n.Then, n.Else} {
				if err := visit(child); err != nil {
					return err
				}
			}
		case expr.Object:
			for _, f := range n.Fields {
				if err := visit(f.Value); err != nil {
					return err
				}
			}
		case expr.Binary:
			if err := visit(n.Left); err != nil {
				return err
			}
			return visit(n.Right)
		}
		return nil
	}
	if err := visit(e); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

func resolveChain(root *model.EntityType, chain []string) (string, []AbstractNavigationAccess, error) {
	current := root
	names := make([]string, 0, len(chain))
	var accesses []AbstractNavigationAccess
	for i, name := range chain {
		last := i == len(chain)-1
		if nav := current.FindNavigation(name); nav != nil {
			names = append(names, nav.Name)
			if !last && nav.Target.Abstract {
				accesses = append(accesses, AbstractNavigationAccess{
					Path:          strings.Join(names, "."),
					Navigation:    nav.Name,
					DeclaringType: nav.DeclaringType.Name,
					TargetType:    nav.Target.Name,
				})
			}
			current = nav.Target
			continue
		}
		if prop := current.FindProperty(name); prop != nil {
			if !last {
				return "", nil, diagnostics.Configf(root.Name, strings.Join(chain, "."),
					"%s is a scalar property of %s and has no members", prop.Name, current.Name)
			}
			names = append(names, prop.Name)
			continue
		}
		return "", nil, diagnostics.Configf(root.Name, strings.Join(chain, "."),
			"%s has no member %s", current.Name, name)
	}
	return strings.Join(names, "."), accesses, nil
}

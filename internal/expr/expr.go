// Package expr is a small declarative expression language used to describe
// projections over entities. Expressions are plain data, so they can be
// analyzed for the members they read and evaluated against loaded entities.
package expr

import (
	"fmt"
	"strings"
)

// Expr is one node of an expression tree. The concrete node types are
// Param, Member, Constant, Conditional, Object and Binary.
type Expr interface {
	expr()
}

// Param is the projected entity itself.
type Param struct{}

// Member reads a property or navigation from Target.
type Member struct {
	Target Expr
	Name   string
}

// Constant is a literal value.
type Constant struct {
	Value any
}

// Conditional evaluates Then when Test is true and Else otherwise.
type Conditional struct {
	Test Expr
	Then Expr
	Else Expr
}

// Field is one named member of an Object.
type Field struct {
	Name  string
	Value Expr
}

// Object builds a shape from named members.
type Object struct {
	Fields []Field
}

// Op is a binary operator.
type Op string

// Supported binary operators.
const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
	OpAnd      Op = "&&"
	OpOr       Op = "||"
)

// Binary combines two operands.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (Param) expr()       {}
func (Member) expr()      {}
func (Constant) expr()    {}
func (Conditional) expr() {}
func (Object) expr()      {}
func (Binary) expr()      {}

// Identity returns the identity projection, the entity itself.
func Identity() Expr {
	return Param{}
}

// IsIdentity reports whether e is the bare identity projection.
func IsIdentity(e Expr) bool {
	switch e.(type) {
	case Param, *Param:
		return true
	}
	return false
}

// Path builds a member chain rooted at the entity from a dotted path.
// Path("Parent.Status") reads Status of the Parent navigation.
func Path(dotted string) Expr {
	var e Expr = Param{}
	for _, name := range strings.Split(dotted, ".") {
		e = Member{Target: e, Name: name}
	}
	return e
}

// Fields builds an Object projection with one member per dotted path, named
// after the last path segment.
func Fields(paths ...string) Expr {
	obj := Object{Fields: make([]Field, 0, len(paths))}
	for _, p := range paths {
		segments := strings.Split(p, ".")
		obj.Fields = append(obj.Fields, Field{Name: segments[len(segments)-1], Value: Path(p)})
	}
	return obj
}

// Const wraps a literal value.
func Const(v any) Expr {
	return Constant{Value: v}
}

// If builds a conditional.
func If(test, then, otherwise Expr) Expr {
	return Conditional{Test: test, Then: then, Else: otherwise}
}

// Eq builds an equality comparison.
func Eq(left, right Expr) Expr {
	return Binary{Op: OpEqual, Left: left, Right: right}
}

// MemberChain returns the member names of e when it is a chain of Member
// nodes rooted at Param.
func MemberChain(e Expr) ([]string, bool) {
	var names []string
	for {
		switch node := e.(type) {
		case Param, *Param:
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
			return names, len(names) > 0
		case Member:
			names = append(names, node.Name)
			e = node.Target
		case *Member:
			names = append(names, node.Name)
			e = node.Target
		default:
			return nil, false
		}
	}
}

// String renders e in a compact form for diagnostics.
func String(e Expr) string {
	switch node := e.(type) {
	case Param, *Param:
		return "e"
	case Member:
		return String(node.Target) + "." + node.Name
	case *Member:
		return String(node.Target) + "." + node.Name
	case Constant:
		return fmt.Sprintf("%#v", node.Value)
	case Conditional:
		return fmt.Sprintf("(%s ? %s : %s)", String(node.Test), String(node.Then), String(node.Else))
	case Object:
		parts := make([]string, len(node.Fields))
		for i, f := range node.Fields {
			parts[i] = f.Name + ": " + String(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Binary:
		return fmt.Sprintf("(%s %s %s)", String(node.Left), node.Op, String(node.Right))
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", e)
	}
}

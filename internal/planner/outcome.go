package planner

import (
	"fmt"

	"entityql/internal/queryable"
)

// ReasonKind classifies why a narrowed projection could not be built.
type ReasonKind int

const (
	// ReasonAbstractType means the type to construct is abstract.
	ReasonAbstractType ReasonKind = iota + 1
	// ReasonReadOnlyProperty means a requested property is computed by the
	// database and cannot be assigned in a shape.
	ReasonReadOnlyProperty
	// ReasonNothingRequested means no scalar and no navigation was requested,
	// so there is nothing to narrow to.
	ReasonNothingRequested
	// ReasonDerivedMember means a requested member is declared only on a
	// derived type and cannot be read through the queried type.
	ReasonDerivedMember
)

func (k ReasonKind) String() string {
	switch k {
	case ReasonAbstractType:
		return "abstract_type"
	case ReasonReadOnlyProperty:
		return "read_only_property"
	case ReasonNothingRequested:
		return "nothing_requested"
	case ReasonDerivedMember:
		return "derived_member"
	default:
		return "unknown"
	}
}

// Reason identifies the type, and the member when there is one, that made a
// projection unbuildable.
type Reason struct {
	Kind   ReasonKind
	Type   string
	Member string
}

func (r Reason) String() string {
	if r.Member != "" {
		return fmt.Sprintf("%s: %s.%s", r.Kind, r.Type, r.Member)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Type)
}

// Outcome is the result of TryBuild: either a built shape or the reason none
// could be built. Unbuildable outcomes are normal control flow.
type Outcome struct {
	shape  *queryable.Shape
	reason Reason
}

// Built wraps a successfully built shape.
func Built(shape *queryable.Shape) Outcome {
	return Outcome{shape: shape}
}

// Unbuildable records why no shape was built.
func Unbuildable(reason Reason) Outcome {
	return Outcome{reason: reason}
}

// Ok reports whether a shape was built.
func (o Outcome) Ok() bool {
	return o.shape != nil
}

// Shape returns the built shape.
func (o Outcome) Shape() (*queryable.Shape, bool) {
	return o.shape, o.shape != nil
}

// Reason returns why the outcome is unbuildable.
func (o Outcome) Reason() (Reason, bool) {
	return o.reason, o.shape == nil
}

func (o Outcome) String() string {
	if o.shape != nil {
		return "built " + o.shape.String()
	}
	return "unbuildable (" + o.reason.String() + ")"
}

package planner

import (
	"fmt"

	"entityql/internal/projection"
)

// PlanLimits defines cost limits applied during planning. Zero disables a limit.
type PlanLimits struct {
	MaxDepth      int
	MaxStatements int
}

// PlanCost captures the estimated cost of a plan.
type PlanCost struct {
	// Depth is the longest chain of navigations below the root.
	Depth int
	// Statements counts the root statement and one per navigation node,
	// before IN-list chunking.
	Statements int
}

// EstimateCost estimates cost from a requirement tree.
func EstimateCost(info *projection.FieldProjectionInfo) PlanCost {
	if info == nil {
		return PlanCost{Statements: 1}
	}
	cost := PlanCost{Statements: 1}
	var walk func(node *projection.FieldProjectionInfo, depth int)
	walk = func(node *projection.FieldProjectionInfo, depth int) {
		if depth > cost.Depth {
			cost.Depth = depth
		}
		for _, n := range node.Navigations {
			cost.Statements++
			walk(n.Child, depth+1)
		}
	}
	walk(info, 0)
	return cost
}

func validateLimits(cost PlanCost, limits PlanLimits) error {
	if limits.MaxDepth > 0 && cost.Depth > limits.MaxDepth {
		return fmt.Errorf("query exceeds maximum depth of %d (depth: %d)", limits.MaxDepth, cost.Depth)
	}
	if limits.MaxStatements > 0 && cost.Statements > limits.MaxStatements {
		return fmt.Errorf("query exceeds maximum statement count of %d (estimated: %d)", limits.MaxStatements, cost.Statements)
	}
	return nil
}

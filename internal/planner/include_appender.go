package planner

import (
	"strings"

	"entityql/internal/model"
	"entityql/internal/projection"
	"entityql/internal/queryable"
)

// IncludeAppender attaches navigation include paths to queries that load
// full entities.
type IncludeAppender struct{}

// AddIncludes adds every path to q. A projected query is returned unchanged:
// its shape already carries what it needs.
//
// Each path is walked from the queried type. A hop to a type that is
// identical to, or a supertype of, a type already on the path is not added,
// and neither is the rest of that path. The longest accepted prefix of each
// path is included once.
func (IncludeAppender) AddIncludes(q *queryable.Query, paths []string) *queryable.Query {
	if q == nil || q.IsProjected() {
		return q
	}
	for _, path := range GuardedPaths(q.Type(), paths) {
		next, err := q.Include(path)
		if err != nil {
			continue
		}
		q = next
	}
	return q
}

// GuardedPaths returns the include paths AddIncludes would attach for root,
// sorted and without duplicates or redundant prefixes.
func GuardedPaths(root *model.EntityType, paths []string) []string {
	accepted := projection.NewPathSet()
	for _, path := range paths {
		chain := []*model.EntityType{root}
		current := root
		var kept []string
		for _, segment := range splitPath(path) {
			nav := current.FindNavigationInHierarchy(segment)
			if nav == nil || projection.Revisits(nav.Target, chain) {
				break
			}
			kept = append(kept, nav.Name)
			chain = append(chain, nav.Target)
			current = nav.Target
		}
		if len(kept) > 0 {
			accepted.Add(strings.Join(kept, "."))
		}
	}

	sorted := accepted.Sorted()
	out := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if !extended(p, sorted) {
			out = append(out, p)
		}
	}
	return out
}

// extended reports whether a longer path in paths continues p, which makes
// p redundant as an include.
func extended(p string, paths []string) bool {
	prefix := strings.ToLower(p) + "."
	for _, other := range paths {
		if strings.HasPrefix(strings.ToLower(other), prefix) {
			return true
		}
	}
	return false
}

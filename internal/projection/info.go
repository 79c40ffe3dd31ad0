package projection

import (
	"sort"
	"strings"

	"entityql/internal/model"
)

// NavigationProjection is a requested navigation and what is needed of its target.
type NavigationProjection struct {
	Navigation   *model.Navigation
	Target       *model.EntityType
	IsCollection bool
	Child        *FieldProjectionInfo
}

// FieldProjectionInfo is the requirement tree of one resolved field: the
// scalars and structural foreign keys needed at this level and the requested
// navigations below it. It is built per request and never shared.
type FieldProjectionInfo struct {
	Type        *model.EntityType
	Scalars     PathSet
	ForeignKeys PathSet
	Navigations map[string]*NavigationProjection
}

// New returns an empty requirement tree for t.
func New(t *model.EntityType) *FieldProjectionInfo {
	return &FieldProjectionInfo{
		Type:        t,
		Scalars:     NewPathSet(),
		ForeignKeys: NewPathSet(),
		Navigations: make(map[string]*NavigationProjection),
	}
}

// IsEmpty reports whether nothing was requested at this level.
func (f *FieldProjectionInfo) IsEmpty() bool {
	return len(f.Scalars) == 0 && len(f.Navigations) == 0
}

// AddScalar records a property by name. Properties declared only on a
// derived type are recorded as given; it reports whether the name resolved
// on this level's type.
func (f *FieldProjectionInfo) AddScalar(name string) bool {
	if p := f.Type.FindProperty(name); p != nil {
		f.Scalars.Add(p.Name)
		return true
	}
	f.Scalars.Add(name)
	return false
}

// AddNavigation records a navigation and returns its child tree. The
// backing foreign keys are required structurally: on this level for a
// reference, on the child for a collection.
func (f *FieldProjectionInfo) AddNavigation(nav *model.Navigation) *FieldProjectionInfo {
	key := strings.ToLower(nav.Name)
	if existing, ok := f.Navigations[key]; ok {
		return existing.Child
	}
	child := New(nav.Target)
	if nav.IsCollection {
		for _, fk := range nav.ForeignKeys {
			child.ForeignKeys.Add(fk)
		}
		for _, pk := range nav.PrincipalKeys {
			f.ForeignKeys.Add(pk)
		}
	} else {
		for _, fk := range nav.ForeignKeys {
			f.ForeignKeys.Add(fk)
		}
		for _, pk := range nav.PrincipalKeys {
			child.ForeignKeys.Add(pk)
		}
	}
	f.Navigations[key] = &NavigationProjection{
		Navigation:   nav,
		Target:       nav.Target,
		IsCollection: nav.IsCollection,
		Child:        child,
	}
	return child
}

// Navigation returns the requested navigation by name.
func (f *FieldProjectionInfo) Navigation(name string) (*NavigationProjection, bool) {
	n, ok := f.Navigations[strings.ToLower(name)]
	return n, ok
}

// SortedNavigations returns the requested navigations ordered by name.
func (f *FieldProjectionInfo) SortedNavigations() []*NavigationProjection {
	out := make([]*NavigationProjection, 0, len(f.Navigations))
	for _, n := range f.Navigations {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Navigation.Name) < strings.ToLower(out[j].Navigation.Name)
	})
	return out
}

// Merge adds every requirement of other to f. Union is idempotent and
// commutative.
func (f *FieldProjectionInfo) Merge(other *FieldProjectionInfo) {
	if other == nil {
		return
	}
	f.Scalars.AddAll(other.Scalars)
	f.ForeignKeys.AddAll(other.ForeignKeys)
	for _, n := range other.Navigations {
		f.AddNavigation(n.Navigation).Merge(n.Child)
	}
}

// MergePaths adds dotted paths relative to this level.
func (f *FieldProjectionInfo) MergePaths(paths PathSet) {
	f.MergePathsWithin(paths, nil)
}

// MergePathsWithin adds dotted paths relative to this level, where ancestors
// are the types on the path from the query root down to (excluding) f.
//
// A navigation that is not already requested is only added when its target
// is neither identical to nor a supertype of any type on the path, f's own
// type included. The rest of that path is skipped, but the keys backing the
// navigation are still required so that it can be loaded later. This keeps
// trees finite when requirements of self-referencing or TPH hierarchies feed
// each other.
func (f *FieldProjectionInfo) MergePathsWithin(paths PathSet, ancestors []*model.EntityType) {
	for _, p := range paths.Sorted() {
		node := f
		chain := append(append([]*model.EntityType(nil), ancestors...), f.Type)
		segments := strings.Split(p, ".")
		for i, segment := range segments {
			last := i == len(segments)-1
			nav := node.Type.FindNavigationInHierarchy(segment)
			if nav == nil {
				if last {
					node.AddScalar(segment)
				}
				break
			}
			if existing, ok := node.Navigation(nav.Name); ok {
				node = existing.Child
			} else {
				if Revisits(nav.Target, chain) {
					node.addOwnerKeys(nav)
					break
				}
				node = node.AddNavigation(nav)
			}
			chain = append(chain, node.Type)
		}
	}
}

func (f *FieldProjectionInfo) addOwnerKeys(nav *model.Navigation) {
	keys := nav.ForeignKeys
	if nav.IsCollection {
		keys = nav.PrincipalKeys
	}
	for _, k := range keys {
		f.ForeignKeys.Add(k)
	}
}

// Revisits reports whether target is identical to, or a supertype of, any
// type in path.
func Revisits(target *model.EntityType, path []*model.EntityType) bool {
	for _, t := range path {
		if target == t || target.IsAssignableFrom(t) {
			return true
		}
	}
	return false
}

// Paths flattens the tree into dotted paths: every scalar and foreign key
// and every navigation, each qualified by the navigations above it.
func (f *FieldProjectionInfo) Paths() PathSet {
	out := NewPathSet()
	f.collectPaths("", out)
	return out
}

func (f *FieldProjectionInfo) collectPaths(prefix string, out PathSet) {
	join := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}
	for _, s := range f.Scalars {
		out.Add(join(s))
	}
	for _, fk := range f.ForeignKeys {
		out.Add(join(fk))
	}
	for _, n := range f.Navigations {
		path := join(n.Navigation.Name)
		out.Add(path)
		n.Child.collectPaths(path, out)
	}
}

// NavigationPaths returns the dotted path of every requested navigation,
// sorted.
func (f *FieldProjectionInfo) NavigationPaths() []string {
	out := NewPathSet()
	var walk func(node *FieldProjectionInfo, prefix string)
	walk = func(node *FieldProjectionInfo, prefix string) {
		for _, n := range node.Navigations {
			path := n.Navigation.Name
			if prefix != "" {
				path = prefix + "." + path
			}
			out.Add(path)
			walk(n.Child, path)
		}
	}
	walk(f, "")
	return out.Sorted()
}

// Clone returns a deep copy.
func (f *FieldProjectionInfo) Clone() *FieldProjectionInfo {
	out := New(f.Type)
	out.Merge(f)
	return out
}

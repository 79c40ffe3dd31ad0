package queryable

import (
	"fmt"
	"strings"
	"sync"

	"entityql/internal/model"
)

// Entity is a materialized row. Property values and loaded navigations are
// read by member name, case-insensitively.
type Entity struct {
	typ    *model.EntityType
	values map[string]any
	navs   map[string]any
	group  *Group

	// partial is set for rows read with a narrowed shape.
	partial bool
}

// NewEntity builds an entity of type t from property values keyed by
// property name.
func NewEntity(t *model.EntityType, values map[string]any) *Entity {
	e := &Entity{
		typ:    t,
		values: make(map[string]any, len(values)),
		navs:   make(map[string]any),
	}
	for name, v := range values {
		e.Set(name, v)
	}
	return e
}

// Type returns the concrete entity type of the row.
func (e *Entity) Type() *model.EntityType {
	return e.typ
}

// Get returns a property value or a loaded navigation. Reference navigations
// hold *Entity or nil, collections hold []*Entity. The second result is false
// when the member was not loaded.
func (e *Entity) Get(name string) (any, bool) {
	key := strings.ToLower(name)
	if v, ok := e.navs[key]; ok {
		return v, true
	}
	v, ok := e.values[key]
	return v, ok
}

// Property returns a loaded property value.
func (e *Entity) Property(name string) (any, bool) {
	v, ok := e.values[strings.ToLower(name)]
	return v, ok
}

// Set stores a property value.
func (e *Entity) Set(name string, value any) {
	if p := e.typ.FindProperty(name); p != nil {
		name = p.Name
	}
	e.values[strings.ToLower(name)] = value
}

// SetReference stores a loaded reference navigation. A nil target records
// that the navigation was loaded and is empty.
func (e *Entity) SetReference(nav *model.Navigation, target *Entity) {
	if target == nil {
		e.navs[strings.ToLower(nav.Name)] = nil
		return
	}
	e.navs[strings.ToLower(nav.Name)] = target
}

// SetCollection stores a loaded collection navigation.
func (e *Entity) SetCollection(nav *model.Navigation, items []*Entity) {
	if items == nil {
		items = []*Entity{}
	}
	e.navs[strings.ToLower(nav.Name)] = items
}

// Reference returns a loaded reference navigation.
func (e *Entity) Reference(name string) (*Entity, bool) {
	v, ok := e.navs[strings.ToLower(name)]
	if !ok || v == nil {
		return nil, ok
	}
	target, _ := v.(*Entity)
	return target, true
}

// Collection returns a loaded collection navigation.
func (e *Entity) Collection(name string) ([]*Entity, bool) {
	v, ok := e.navs[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	items, _ := v.([]*Entity)
	return items, true
}

// IsPartial reports whether the row was read with a narrowed shape, so
// properties outside that shape are absent.
func (e *Entity) IsPartial() bool {
	return e.partial
}

// IsLoaded reports whether navigation name was loaded.
func (e *Entity) IsLoaded(name string) bool {
	_, ok := e.navs[strings.ToLower(name)]
	return ok
}

// Values returns the loaded property values keyed by property name.
func (e *Entity) Values() map[string]any {
	out := make(map[string]any, len(e.values))
	for _, p := range e.typ.Properties() {
		if v, ok := e.values[strings.ToLower(p.Name)]; ok {
			out[p.Name] = v
		}
	}
	return out
}

// Key renders the values of names as a comparable tuple key. It fails when a
// value was not loaded and reports false when any value is NULL.
func (e *Entity) Key(names []string) (string, bool, error) {
	values := make([]any, len(names))
	for i, name := range names {
		v, ok := e.Property(name)
		if !ok {
			return "", false, fmt.Errorf("%s.%s was not loaded", e.typ.Name, name)
		}
		if v == nil {
			return "", false, nil
		}
		values[i] = v
	}
	return tupleKey(values), true, nil
}

// Group returns the sibling group the entity was loaded with.
func (e *Entity) Group() *Group {
	if e.group == nil {
		e.group = newGroup([]*Entity{e})
	}
	return e.group
}

func (e *Entity) String() string {
	keys := e.typ.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := e.Property(k)
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return e.typ.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Group is the set of entities materialized by one statement. Navigations
// resolved lazily are loaded for every member at once.
type Group struct {
	mu      sync.Mutex
	members []*Entity
}

func newGroup(members []*Entity) *Group {
	g := &Group{members: members}
	for _, m := range members {
		m.group = g
	}
	return g
}

// Members returns the entities of the group.
func (g *Group) Members() []*Entity {
	return g.members
}

func tupleKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/autoscene/autoscene/internal/kbs"
)

// UnknownIdentityError is returned when a logical identity has no binding
// in the requested scene.
type UnknownIdentityError struct {
	LogicalID  string
	SceneIndex int
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("logical identity %q is not registered in scene %d", e.LogicalID, e.SceneIndex)
}

// ErrIdentityConflict is returned when a binding would make a logical
// identity or a scene entity ambiguous.
var ErrIdentityConflict = errors.New("identity conflict")

// IdentityMap maps scenario-scoped logical identities to the entity IDs
// that denote them in each scene. Bindings are explicit; nothing is
// inferred from matching entity IDs across scenes.
type IdentityMap struct {
	order    []string
	forward  map[string]map[int]string // logical -> scene -> entity
	backward map[int]map[string]string // scene -> entity -> logical
}

// NewIdentityMap returns an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		forward:  make(map[string]map[int]string),
		backward: make(map[int]map[string]string),
	}
}

// Bind ties logicalID to entityID in scene. Binding the same pair again is
// a no-op. Rebinding the identity in that scene to another entity, or
// binding the entity under a second identity, fails with
// ErrIdentityConflict.
func (m *IdentityMap) Bind(logicalID string, scene int, entityID string) error {
	if logicalID == "" {
		return fmt.Errorf("logical identity must not be empty")
	}
	if entityID == "" {
		return fmt.Errorf("entity id must not be empty")
	}
	if current, ok := m.forward[logicalID][scene]; ok {
		if current == entityID {
			return nil
		}
		return fmt.Errorf("%q is already bound to %q in scene %d: %w", logicalID, current, scene, ErrIdentityConflict)
	}
	if other, ok := m.backward[scene][entityID]; ok {
		return fmt.Errorf("entity %q in scene %d is already registered as %q: %w", entityID, scene, other, ErrIdentityConflict)
	}

	if _, ok := m.forward[logicalID]; !ok {
		m.forward[logicalID] = make(map[int]string)
		m.order = append(m.order, logicalID)
	}
	m.forward[logicalID][scene] = entityID
	if m.backward[scene] == nil {
		m.backward[scene] = make(map[string]string)
	}
	m.backward[scene][entityID] = logicalID
	return nil
}

// Lookup returns the entity bound to logicalID in scene.
func (m *IdentityMap) Lookup(logicalID string, scene int) (string, bool) {
	id, ok := m.forward[logicalID][scene]
	return id, ok
}

// LogicalID returns the identity an entity of scene is registered under.
func (m *IdentityMap) LogicalID(scene int, entityID string) (string, bool) {
	id, ok := m.backward[scene][entityID]
	return id, ok
}

// LogicalIDs returns all identities in registration order.
func (m *IdentityMap) LogicalIDs() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of logical identities.
func (m *IdentityMap) Len() int { return len(m.order) }

// Scenes returns the scene indices logicalID is bound in, ascending.
func (m *IdentityMap) Scenes(logicalID string) []int {
	bound := m.forward[logicalID]
	out := make([]int, 0, len(bound))
	for idx := range bound {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// shift moves every binding at scene index from or later one position up,
// making room for a scene inserted at from.
func (m *IdentityMap) shift(from int) {
	for _, bound := range m.forward {
		moved := make(map[int]string, len(bound))
		for idx, entity := range bound {
			if idx >= from {
				idx++
			}
			moved[idx] = entity
		}
		for k := range bound {
			delete(bound, k)
		}
		for k, v := range moved {
			bound[k] = v
		}
	}
	backward := make(map[int]map[string]string, len(m.backward))
	for idx, entities := range m.backward {
		if idx >= from {
			idx++
		}
		backward[idx] = entities
	}
	m.backward = backward
}

// entries converts the map to container form.
func (m *IdentityMap) entries() []kbs.Identity {
	out := make([]kbs.Identity, 0, len(m.order))
	for _, logical := range m.order {
		id := kbs.Identity{LogicalID: logical}
		for _, idx := range m.Scenes(logical) {
			id.Bindings = append(id.Bindings, kbs.Binding{Scene: idx, Entity: m.forward[logical][idx]})
		}
		out = append(out, id)
	}
	return out
}

// identityMapFrom rebuilds a map from container entries.
func identityMapFrom(entries []kbs.Identity) (*IdentityMap, error) {
	m := NewIdentityMap()
	for _, e := range entries {
		for _, b := range e.Bindings {
			if err := m.Bind(e.LogicalID, b.Scene, b.Entity); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Package membership keeps the set of subscribed entities together with
// per-entity client state.
package membership

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/centrifugal/subclient/internal/entity"
)

// State is a flat client state blob attached to a subscribed entity. Values
// must be strings, numbers or booleans.
type State map[string]any

var ErrNestedState = errors.New("client state must be flat")

// ValidateState returns an error if state contains nested or unsupported values.
func ValidateState(s State) error {
	for k, v := range s {
		switch v.(type) {
		case string, bool, json.Number,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		case map[string]any, State, []any:
			return fmt.Errorf("%w: key %q holds nested value", ErrNestedState, k)
		default:
			return fmt.Errorf("%w: key %q holds unsupported value of type %T", ErrNestedState, k, v)
		}
	}
	return nil
}

// Clone returns a copy of state, nil stays nil.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// Equal reports whether both states hold the same keys and values.
func (s State) Equal(o State) bool {
	if len(s) != len(o) {
		return false
	}
	return maps.Equal(s, o)
}

// Member is a subscribed entity with optional state.
type Member struct {
	Entity entity.Entity
	State  State
}

// Set is the membership set. Entity identity is unique inside a Set,
// re-adding an entity overwrites its state and keeps its position.
// Set is not goroutine-safe, callers must synchronize access.
type Set struct {
	order  []entity.Entity
	states map[entity.Entity]State
}

// New creates empty Set.
func New() *Set {
	return &Set{states: make(map[entity.Entity]State)}
}

// Len returns number of members.
func (s *Set) Len() int {
	return len(s.order)
}

// Contains reports whether entity is a member.
func (s *Set) Contains(e entity.Entity) bool {
	_, ok := s.states[e]
	return ok
}

// State returns a copy of entity state.
func (s *Set) State(e entity.Entity) (State, bool) {
	st, ok := s.states[e]
	return st.Clone(), ok
}

// Add merges members into the set. It returns true if the set changed: a new
// entity was added or state of an existing entity differs from the stored one.
func (s *Set) Add(members ...Member) (bool, error) {
	for _, m := range members {
		if err := m.Entity.Validate(); err != nil {
			return false, err
		}
		if err := ValidateState(m.State); err != nil {
			return false, fmt.Errorf("state for %s: %w", m.Entity, err)
		}
	}
	changed := false
	for _, m := range members {
		prev, ok := s.states[m.Entity]
		if !ok {
			s.order = append(s.order, m.Entity)
			changed = true
		} else if !prev.Equal(m.State) {
			changed = true
		}
		s.states[m.Entity] = m.State.Clone()
	}
	return changed, nil
}

// SetState replaces state of an existing member. It returns false if entity
// is not a member.
func (s *Set) SetState(e entity.Entity, st State) (bool, error) {
	if _, ok := s.states[e]; !ok {
		return false, nil
	}
	if err := ValidateState(st); err != nil {
		return false, err
	}
	s.states[e] = st.Clone()
	return true, nil
}

// Remove removes entities from the set returning members which were
// actually removed, in set order.
func (s *Set) Remove(entities ...entity.Entity) []Member {
	if len(entities) == 0 {
		return nil
	}
	drop := make(map[entity.Entity]struct{}, len(entities))
	for _, e := range entities {
		if _, ok := s.states[e]; ok {
			drop[e] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return nil
	}
	removed := make([]Member, 0, len(drop))
	order := s.order[:0]
	for _, e := range s.order {
		if _, ok := drop[e]; ok {
			removed = append(removed, Member{Entity: e, State: s.states[e]})
			delete(s.states, e)
			continue
		}
		order = append(order, e)
	}
	clear(s.order[len(order):])
	s.order = order
	return removed
}

// Clear removes all members and returns them.
func (s *Set) Clear() []Member {
	members := s.Members()
	s.order = nil
	s.states = make(map[entity.Entity]State)
	return members
}

// Members returns snapshot of members in insertion order.
func (s *Set) Members() []Member {
	members := make([]Member, 0, len(s.order))
	for _, e := range s.order {
		members = append(members, Member{Entity: e, State: s.states[e].Clone()})
	}
	return members
}

// Entities returns snapshot of member entities in insertion order.
func (s *Set) Entities() []entity.Entity {
	return slices.Clone(s.order)
}

// Entities extracts entities of members.
func Entities(members []Member) []entity.Entity {
	out := make([]entity.Entity, 0, len(members))
	for _, m := range members {
		out = append(out, m.Entity)
	}
	return out
}

// Package presence derives join and leave events from membership changes.
package presence

import (
	"fmt"
	"strings"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/membership"
)

// Action of presence event.
type Action string

const (
	ActionJoin        Action = "join"
	ActionLeave       Action = "leave"
	ActionTimeout     Action = "timeout"
	ActionStateChange Action = "state-change"
	ActionInterval    Action = "interval"
)

// Change is a single presence transition of this client on an entity.
// State is only set for join and state-change.
type Change struct {
	Action Action
	Entity entity.Entity
	State  membership.State
}

// Mode selects how membership changes translate to presence changes.
type Mode uint8

const (
	// ModeFullBatch announces leave for every previously active entity and
	// join for every resulting entity on each subscribe.
	ModeFullBatch Mode = iota
	// ModeIncremental only announces entities which were added or whose
	// state changed.
	ModeIncremental
)

// ParseMode parses mode name. Empty string means full batch.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "full":
		return ModeFullBatch, nil
	case "incremental":
		return ModeIncremental, nil
	default:
		return 0, fmt.Errorf("unknown presence policy: %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full"
}

// Policy computes presence changes. Presence companion entities never
// produce changes of their own.
type Policy struct {
	mode Mode
}

// NewPolicy creates Policy.
func NewPolicy(mode Mode) Policy {
	return Policy{mode: mode}
}

func (p Policy) Mode() Mode {
	return p.mode
}

// Subscribe returns changes for a subscribe call which moved membership from
// prev to next. No changes are produced when membership did not change.
func (p Policy) Subscribe(prev, next []membership.Member) []Change {
	if sameMembers(prev, next) {
		return nil
	}
	if p.mode == ModeIncremental {
		return incremental(prev, next)
	}
	changes := make([]Change, 0, len(prev)+len(next))
	changes = appendLeaves(changes, prev)
	return appendJoins(changes, next)
}

// Unsubscribe returns leave changes for removed members.
func (p Policy) Unsubscribe(removed []membership.Member) []Change {
	return appendLeaves(nil, removed)
}

// Rejoin returns a leave for every member followed by a join for every
// member. Used when client identity changes, in every mode.
func (p Policy) Rejoin(members []membership.Member) []Change {
	changes := make([]Change, 0, 2*len(members))
	changes = appendLeaves(changes, members)
	return appendJoins(changes, members)
}

// StateChange returns change announcing new state of member.
func (p Policy) StateChange(m membership.Member) []Change {
	if m.Entity.IsPresence() {
		return nil
	}
	return []Change{{Action: ActionStateChange, Entity: m.Entity, State: m.State.Clone()}}
}

func appendLeaves(changes []Change, members []membership.Member) []Change {
	for _, m := range members {
		if m.Entity.IsPresence() {
			continue
		}
		changes = append(changes, Change{Action: ActionLeave, Entity: m.Entity})
	}
	return changes
}

func appendJoins(changes []Change, members []membership.Member) []Change {
	for _, m := range members {
		if m.Entity.IsPresence() {
			continue
		}
		changes = append(changes, Change{Action: ActionJoin, Entity: m.Entity, State: m.State.Clone()})
	}
	return changes
}

func incremental(prev, next []membership.Member) []Change {
	before := make(map[entity.Entity]membership.State, len(prev))
	for _, m := range prev {
		before[m.Entity] = m.State
	}
	var changes []Change
	for _, m := range next {
		if m.Entity.IsPresence() {
			continue
		}
		st, ok := before[m.Entity]
		if ok && st.Equal(m.State) {
			continue
		}
		changes = append(changes, Change{Action: ActionJoin, Entity: m.Entity, State: m.State.Clone()})
	}
	return changes
}

func sameMembers(a, b []membership.Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Entity != b[i].Entity || !a[i].State.Equal(b[i].State) {
			return false
		}
	}
	return true
}

// Package entity defines subscribable channel and channel group identifiers.
package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Kind of subscribable entity.
type Kind uint8

const (
	KindChannel Kind = iota + 1
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind:%d", uint8(k))
	}
}

// PresenceSuffix is appended to a channel name to get the companion channel
// which carries presence events of that channel.
const PresenceSuffix = "-pnpres"

// namespaceSeparator separates namespace and group name in string form.
const namespaceSeparator = ":"

var (
	ErrEmptyName    = errors.New("entity name must not be empty")
	ErrInvalidName  = errors.New("entity name contains forbidden characters")
	ErrInvalidGroup = errors.New("malformed channel group name")
)

// Entity is a channel or a channel group. Entities are compared by kind,
// namespace and name. The zero value is not a valid Entity.
type Entity struct {
	kind      Kind
	namespace string
	name      string
}

// Channel returns channel entity with the given name.
func Channel(name string) Entity {
	return Entity{kind: KindChannel, name: name}
}

// Group returns channel group entity. Namespace is optional.
func Group(namespace, name string) Entity {
	return Entity{kind: KindGroup, namespace: namespace, name: name}
}

// ParseGroup parses "namespace:name" or "name" into a group Entity.
func ParseGroup(s string) (Entity, error) {
	ns, name, found := strings.Cut(s, namespaceSeparator)
	if !found {
		name, ns = ns, ""
	}
	if found && (ns == "" || strings.Contains(name, namespaceSeparator)) {
		return Entity{}, fmt.Errorf("%w: %q", ErrInvalidGroup, s)
	}
	e := Group(ns, name)
	if err := e.Validate(); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (e Entity) Kind() Kind { return e.kind }
func (e Entity) Namespace() string { return e.namespace }
func (e Entity) Name() string { return e.name }
func (e Entity) IsChannel() bool { return e.kind == KindChannel }
func (e Entity) IsGroup() bool { return e.kind == KindGroup }
func (e Entity) IsZero() bool { return e.kind == 0 }
func (e Entity) Equal(o Entity) bool { return e == o }
func (e Entity) IsPresence() bool { return strings.HasSuffix(e.name, PresenceSuffix) }

// FullName is the name as used on the wire: "namespace:name" for namespaced
// groups, plain name otherwise.
func (e Entity) FullName() string {
	if e.namespace == "" {
		return e.name
	}
	return e.namespace + namespaceSeparator + e.name
}

// Key uniquely identifies the entity, used as map key.
func (e Entity) Key() string {
	return e.kind.String() + "/" + e.FullName()
}

func (e Entity) String() string {
	return e.kind.String() + ":" + e.FullName()
}

// WithPresence returns the presence companion of a channel or group.
// Presence entities are returned unchanged.
func (e Entity) WithPresence() Entity {
	if e.IsPresence() {
		return e
	}
	e.name += PresenceSuffix
	return e
}

// WithoutPresence strips presence suffix.
func (e Entity) WithoutPresence() Entity {
	e.name = strings.TrimSuffix(e.name, PresenceSuffix)
	return e
}

// Validate checks entity is well-formed.
func (e Entity) Validate() error {
	if e.kind != KindChannel && e.kind != KindGroup {
		return fmt.Errorf("unknown entity kind: %s", e.kind)
	}
	if e.name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(e.name, ",/?#") || strings.ContainsAny(e.namespace, ",/?#:") {
		return fmt.Errorf("%w: %q", ErrInvalidName, e.FullName())
	}
	if e.kind == KindChannel && e.namespace != "" {
		return fmt.Errorf("channel %q can't have namespace", e.name)
	}
	return nil
}

// Unique returns entities without duplicates keeping first occurrence order.
func Unique(entities []Entity) []Entity {
	seen := make(map[Entity]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Split returns wire names of channels and groups separately.
func Split(entities []Entity) (channels []string, groups []string) {
	for _, e := range entities {
		switch e.kind {
		case KindChannel:
			channels = append(channels, e.FullName())
		case KindGroup:
			groups = append(groups, e.FullName())
		}
	}
	return channels, groups
}

// FromNames builds entities from wire names of channels and groups.
// Malformed group names are skipped.
func FromNames(channels, groups []string) []Entity {
	out := make([]Entity, 0, len(channels)+len(groups))
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		out = append(out, Channel(ch))
	}
	for _, g := range groups {
		e, err := ParseGroup(g)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

package fanout

import (
	"fmt"
	"slices"
	"strings"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/presence"
)

// Category of event. Categories are bit flags so an observer may register
// for several of them at once.
type Category uint16

const (
	CategoryConnection Category = 1 << iota
	CategorySubscription
	CategoryUnsubscription
	CategoryMessage
	CategoryPresence
	CategoryPublish
	CategoryIdentity
	CategoryError
)

const (
	// CategoryStatus covers events describing client status, not data.
	CategoryStatus = CategoryConnection | CategorySubscription | CategoryUnsubscription | CategoryIdentity | CategoryError
	CategoryAll    = CategoryStatus | CategoryMessage | CategoryPresence | CategoryPublish
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{CategoryConnection, "connection"},
	{CategorySubscription, "subscription"},
	{CategoryUnsubscription, "unsubscription"},
	{CategoryMessage, "message"},
	{CategoryPresence, "presence"},
	{CategoryPublish, "publish"},
	{CategoryIdentity, "identity"},
	{CategoryError, "error"},
}

func (c Category) String() string {
	var names []string
	for _, n := range categoryNames {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("category:%d", uint16(c))
	}
	return strings.Join(names, "|")
}

// ParseCategory parses comma separated category names, "status" and "all"
// are accepted as well.
func ParseCategory(s string) (Category, error) {
	var c Category
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "":
			continue
		case "all":
			c |= CategoryAll
			continue
		case "status":
			c |= CategoryStatus
			continue
		}
		found := false
		for _, n := range categoryNames {
			if n.name == part {
				c |= n.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown event category: %q", part)
		}
	}
	return c, nil
}

// Event is one of ConnectionEvent, SubscriptionEvent, UnsubscriptionEvent,
// MessageEvent, PresenceEvent, PublishEvent, IdentityEvent, ErrorEvent.
type Event interface {
	Category() Category
	// Entities the event relates to, empty for client-wide events.
	Entities() []entity.Entity
	isEvent()
}

// ConnectionStatus of ConnectionEvent.
type ConnectionStatus uint8

const (
	StatusConnected ConnectionStatus = iota + 1
	StatusReconnecting
	StatusReconnected
	StatusDisconnected
	StatusConnectFailed
	StatusCatchUpFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusReconnected:
		return "reconnected"
	case StatusDisconnected:
		return "disconnected"
	case StatusConnectFailed:
		return "connect_failed"
	case StatusCatchUpFailed:
		return "catch_up_failed"
	default:
		return fmt.Sprintf("status:%d", uint8(s))
	}
}

// ConnectionEvent reports connection state transitions. For StatusConnectFailed
// a nil Err means the failure is a network one and the client keeps retrying,
// non-nil Err means server rejected the connection.
type ConnectionEvent struct {
	Status ConnectionStatus
	Err    error
	Token  string
	Epoch  uint64
}

// SubscriptionEvent completes a subscribe or a subscription restore. Err is
// set when server rejected the subscription, Failed lists rejected entities.
type SubscriptionEvent struct {
	Subscribed []entity.Entity
	Failed     []entity.Entity
	Err        error
}

// UnsubscriptionEvent completes an unsubscribe.
type UnsubscriptionEvent struct {
	Unsubscribed []entity.Entity
	Failed       []entity.Entity
	Err          error
}

// MessageEvent is a message or signal received on a subscribed entity.
type MessageEvent struct {
	// Entity is the subscribed entity that matched: a group for group
	// subscriptions, the channel otherwise.
	Entity  entity.Entity
	Channel string
	Payload []byte
	Meta    []byte
	Issuer  string
	Token   string
	Signal  bool
}

// PresenceEvent is a presence transition. Local events are produced by
// the client from its own membership changes, others come from server.
type PresenceEvent struct {
	Entity    entity.Entity
	Action    presence.Action
	ClientID  string
	Occupancy int
	Timestamp int64
	State     membership.State
	Local     bool
}

// PublishEvent reports terminal status of a queued publish.
type PublishEvent struct {
	ID     string
	Entity entity.Entity
	Token  string
	Err    error
}

// IdentityEvent reports client identifier change.
type IdentityEvent struct {
	Previous string
	Current  string
	CatchUp  bool
	Err      error
}

// ErrorEvent reports a non-fatal failure that does not belong to a call.
type ErrorEvent struct {
	Err     error
	Related []entity.Entity
}

func (ConnectionEvent) Category() Category     { return CategoryConnection }
func (SubscriptionEvent) Category() Category   { return CategorySubscription }
func (UnsubscriptionEvent) Category() Category { return CategoryUnsubscription }
func (MessageEvent) Category() Category        { return CategoryMessage }
func (PresenceEvent) Category() Category       { return CategoryPresence }
func (PublishEvent) Category() Category        { return CategoryPublish }
func (IdentityEvent) Category() Category       { return CategoryIdentity }
func (ErrorEvent) Category() Category          { return CategoryError }

func (ConnectionEvent) Entities() []entity.Entity       { return nil }
func (e SubscriptionEvent) Entities() []entity.Entity   { return slices.Concat(e.Subscribed, e.Failed) }
func (e UnsubscriptionEvent) Entities() []entity.Entity { return slices.Concat(e.Unsubscribed, e.Failed) }
func (e MessageEvent) Entities() []entity.Entity        { return []entity.Entity{e.Entity} }
func (e PresenceEvent) Entities() []entity.Entity       { return []entity.Entity{e.Entity} }
func (e PublishEvent) Entities() []entity.Entity        { return []entity.Entity{e.Entity} }
func (IdentityEvent) Entities() []entity.Entity         { return nil }
func (e ErrorEvent) Entities() []entity.Entity          { return e.Related }

func (ConnectionEvent) isEvent()     {}
func (SubscriptionEvent) isEvent()   {}
func (UnsubscriptionEvent) isEvent() {}
func (MessageEvent) isEvent()        {}
func (PresenceEvent) isEvent()       {}
func (PublishEvent) isEvent()        {}
func (IdentityEvent) isEvent()       {}
func (ErrorEvent) isEvent()          {}

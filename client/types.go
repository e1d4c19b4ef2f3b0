package client

import (
	"github.com/centrifugal/subclient/internal/compose"
	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/fanout"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/outbound"
	"github.com/centrifugal/subclient/internal/presence"
	"github.com/centrifugal/subclient/internal/timetoken"
	"github.com/centrifugal/subclient/internal/transport"
)

type (
	Entity         = entity.Entity
	MemberState    = membership.State
	Cursor         = timetoken.Cursor
	PresenceAction = presence.Action
	PublishHandle  = outbound.Handle
	PublishResult  = outbound.Result
)

// Transport and the types of its methods, used to replace the HTTP
// transport.
type (
	Transport       = transport.Transport
	PollRequest     = compose.Request
	PollResponse    = transport.Response
	PollEvent       = transport.Event
	PublishRequest  = transport.PublishRequest
	PublishResponse = transport.PublishResponse
	TransportError  = transport.Error
)

// Events.
type (
	Event               = fanout.Event
	Category            = fanout.Category
	ConnectionStatus    = fanout.ConnectionStatus
	ConnectionEvent     = fanout.ConnectionEvent
	SubscriptionEvent   = fanout.SubscriptionEvent
	UnsubscriptionEvent = fanout.UnsubscriptionEvent
	MessageEvent        = fanout.MessageEvent
	PresenceEvent       = fanout.PresenceEvent
	PublishEvent        = fanout.PublishEvent
	IdentityEvent       = fanout.IdentityEvent
	ErrorEvent          = fanout.ErrorEvent
	Delegate            = fanout.Delegate
	NopDelegate         = fanout.NopDelegate
	Filter              = fanout.Filter
	ObserverHandle      = fanout.Handle
)

const (
	CategoryConnection     = fanout.CategoryConnection
	CategorySubscription   = fanout.CategorySubscription
	CategoryUnsubscription = fanout.CategoryUnsubscription
	CategoryMessage        = fanout.CategoryMessage
	CategoryPresence       = fanout.CategoryPresence
	CategoryPublish        = fanout.CategoryPublish
	CategoryIdentity       = fanout.CategoryIdentity
	CategoryError          = fanout.CategoryError
	CategoryStatus         = fanout.CategoryStatus
	CategoryAll            = fanout.CategoryAll
)

const (
	StatusConnected     = fanout.StatusConnected
	StatusReconnecting  = fanout.StatusReconnecting
	StatusReconnected   = fanout.StatusReconnected
	StatusDisconnected  = fanout.StatusDisconnected
	StatusConnectFailed = fanout.StatusConnectFailed
	StatusCatchUpFailed = fanout.StatusCatchUpFailed
)

const (
	ActionJoin        = presence.ActionJoin
	ActionLeave       = presence.ActionLeave
	ActionTimeout     = presence.ActionTimeout
	ActionStateChange = presence.ActionStateChange
	ActionInterval    = presence.ActionInterval
)

// Channel returns channel entity.
func Channel(name string) Entity { return entity.Channel(name) }

// Group returns channel group entity, namespace is optional.
func Group(namespace, name string) Entity { return entity.Group(namespace, name) }

// ParseGroup parses "namespace:name" into group entity.
func ParseGroup(s string) (Entity, error) { return entity.ParseGroup(s) }

// ParseCategory parses comma separated category names.
func ParseCategory(s string) (Category, error) { return fanout.ParseCategory(s) }

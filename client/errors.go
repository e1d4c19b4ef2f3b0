package client

import (
	"errors"

	"github.com/centrifugal/subclient/internal/outbound"
)

var (
	// ErrNoConfiguration returned by Connect, Publish and Time before Configure.
	ErrNoConfiguration = errors.New("client is not configured")
	// ErrAlreadyConnected returned by Connect while connecting or connected.
	ErrAlreadyConnected = errors.New("client is already connecting or connected")
	// ErrNotSubscribed returned when operation requires a subscribed entity.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrInvalidState returned by Configure while connected.
	ErrInvalidState = errors.New("invalid client state for operation")
	// ErrClosed returned by every operation after Close.
	ErrClosed = errors.New("client closed")
	// ErrNoEntities returned by Subscribe and Unsubscribe without entities.
	ErrNoEntities = errors.New("no entities")
	// ErrEmptyClientID returned by SetClientID.
	ErrEmptyClientID = errors.New("empty client id")

	ErrQueueClosed = outbound.ErrQueueClosed
	ErrCanceled    = outbound.ErrCanceled
)

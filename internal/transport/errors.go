package transport

import (
	"errors"
	"fmt"

	"github.com/centrifugal/subclient/internal/entity"
)

// Kind classifies transport level failures.
type Kind uint8

const (
	// KindTransport means request did not reach server or response did not
	// reach client: DNS, connection refused, timeout.
	KindTransport Kind = iota + 1
	// KindServer means server actively rejected request.
	KindServer
	// KindTokenExpired means server can't resume from provided time token.
	KindTokenExpired
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindTokenExpired:
		return "token_expired"
	default:
		return fmt.Sprintf("kind:%d", uint8(k))
	}
}

// Error returned by Transport methods. Channels and Groups list entities
// server reported as failed, so caller can retry just those.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Channels   []string
	Groups     []string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error: status %d: %s", e.Kind, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entities returns failed entities reported by server.
func (e *Error) Entities() []entity.Entity {
	return entity.FromNames(e.Channels, e.Groups)
}

// KindOf returns Kind of err or zero Kind if err is not a transport Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTokenExpired reports whether err says the time token is out of retention.
func IsTokenExpired(err error) bool {
	return KindOf(err) == KindTokenExpired
}

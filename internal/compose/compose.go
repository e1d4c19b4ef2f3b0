// Package compose builds long-poll requests from membership and stream cursor.
package compose

import (
	"errors"
	"fmt"
	"time"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/timetoken"

	"github.com/segmentio/encoding/json"
)

var ErrNoEntities = errors.New("no entities to poll")

// Options of Composer.
type Options struct {
	// HeartbeatTimeout tells server how long to keep this client present
	// without a new request. Zero means server default.
	HeartbeatTimeout time.Duration
	// FilterExpression is a server side message filter.
	FilterExpression string
}

// Request is a single long-poll request. The whole entity list is encoded in
// every request.
type Request struct {
	Channels         []string
	Groups           []string
	Cursor           timetoken.Cursor
	Epoch            uint64
	ClientID         string
	State            string
	Heartbeat        int
	FilterExpression string
}

// Handshake reports whether request starts a new stream position.
func (r *Request) Handshake() bool {
	return r.Cursor.IsZero()
}

// Entities returns entities polled by request.
func (r *Request) Entities() []entity.Entity {
	return entity.FromNames(r.Channels, r.Groups)
}

// Composer builds requests.
type Composer struct {
	opts Options
}

// New creates Composer.
func New(opts Options) *Composer {
	return &Composer{opts: opts}
}

// Build composes request over all members. Members without state don't
// contribute to the state parameter, presence companions never do.
func (c *Composer) Build(members []membership.Member, cursor timetoken.Cursor, epoch uint64, clientID string) (*Request, error) {
	if len(members) == 0 {
		return nil, ErrNoEntities
	}
	req := &Request{
		Cursor:           cursor,
		Epoch:            epoch,
		ClientID:         clientID,
		FilterExpression: c.opts.FilterExpression,
	}
	if c.opts.HeartbeatTimeout > 0 {
		req.Heartbeat = int(c.opts.HeartbeatTimeout / time.Second)
	}
	entities := membership.Entities(members)
	req.Channels, req.Groups = entity.Split(entities)

	states := make(map[string]membership.State)
	for _, m := range members {
		if len(m.State) == 0 || m.Entity.IsPresence() {
			continue
		}
		states[m.Entity.FullName()] = m.State
	}
	if len(states) > 0 {
		data, err := json.Marshal(states)
		if err != nil {
			return nil, fmt.Errorf("error encoding client state: %w", err)
		}
		req.State = string(data)
	}
	return req, nil
}

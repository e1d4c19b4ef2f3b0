package client

import (
	"errors"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/fanout"
	"github.com/centrifugal/subclient/internal/outbound"
	"github.com/centrifugal/subclient/internal/transport"

	"github.com/tidwall/gjson"
)

// PublishOptions parameterize a publish.
type PublishOptions struct {
	// StoreInHistory keeps message in channel history.
	StoreInHistory bool
	// Compress sends gzip compressed body.
	Compress bool
	// APNSPayload and GCMPayload are push notification payloads delivered
	// along with the message.
	APNSPayload []byte
	GCMPayload  []byte
	// Meta is attached to message and available to filter expressions.
	Meta []byte
}

var errInvalidPayload = errors.New("payload must be valid JSON")

// Publish enqueues message to channel and returns immediately. Messages are
// sent one at a time in submission order, independently of the subscribe
// connection. Terminal status is reported to the handle and as PublishEvent.
func (c *Client) Publish(channel string, payload []byte, opts PublishOptions) (*PublishHandle, error) {
	if err := entity.Channel(channel).Validate(); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(payload) {
		return nil, errInvalidPayload
	}
	if len(opts.Meta) > 0 && !gjson.ValidBytes(opts.Meta) {
		return nil, errors.New("meta must be valid JSON")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.config == nil || c.queue == nil {
		c.mu.Unlock()
		return nil, ErrNoConfiguration
	}
	queue := c.queue
	clientID := c.clientID
	c.mu.Unlock()

	return queue.Enqueue(transport.PublishRequest{
		Channel:        channel,
		Payload:        payload,
		ClientID:       clientID,
		StoreInHistory: opts.StoreInHistory,
		Compress:       opts.Compress,
		APNSPayload:    opts.APNSPayload,
		GCMPayload:     opts.GCMPayload,
		Meta:           opts.Meta,
	})
}

// PendingPublishes returns handles of messages not yet sent, in
// submission order.
func (c *Client) PendingPublishes() []*PublishHandle {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue == nil {
		return nil
	}
	return queue.Pending()
}

func (c *Client) onPublishComplete(h *outbound.Handle, r outbound.Result) {
	if r.Err != nil && !errors.Is(r.Err, outbound.ErrCanceled) {
		c.log.Error().Err(r.Err).Str("id", h.ID()).Str("channel", h.Channel()).Msg("publish failed")
	}
	c.hub.Emit(fanout.PublishEvent{
		ID:     h.ID(),
		Entity: entity.Channel(h.Channel()),
		Token:  r.Token,
		Err:    r.Err,
	})
}

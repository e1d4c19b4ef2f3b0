// Package client is a publish/subscribe client. A single long-poll
// connection multiplexes every subscribed channel and channel group,
// survives network failures and resumes the stream from the last received
// time token. Events reach listeners through per-call completions, an
// optional delegate and any number of observers.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/centrifugal/subclient/internal/backoff"
	"github.com/centrifugal/subclient/internal/compose"
	"github.com/centrifugal/subclient/internal/fanout"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/metrics"
	"github.com/centrifugal/subclient/internal/outbound"
	"github.com/centrifugal/subclient/internal/presence"
	"github.com/centrifugal/subclient/internal/timetoken"
	"github.com/centrifugal/subclient/internal/transport"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State of connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		panic(fmt.Sprintf("unknown client state %d", uint8(s)))
	}
}

// Option configures Client on creation.
type Option func(*options)

type options struct {
	transport  transport.Transport
	httpClient *http.Client
	logger     *zerolog.Logger
	delegate   any
}

// WithTransport replaces HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithHTTPClient sets HTTP client used by default transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets logger, global zerolog logger is used by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithDelegate sets delegate, see SetDelegate.
func WithDelegate(d any) Option {
	return func(o *options) { o.delegate = d }
}

// Client is a publish/subscribe client. All methods are safe for
// concurrent use. Listeners are called synchronously from client
// goroutines and must not call Close.
type Client struct {
	opts options
	log  zerolog.Logger
	hub  *fanout.Hub

	mu        sync.Mutex
	config    *Config
	transport transport.Transport
	composer  *compose.Composer
	policy    presence.Policy
	backoff   backoff.Backoff
	queue     *outbound.Queue
	state     State
	clientID  string
	members   *membership.Set
	tokens    *timetoken.Manager
	session   *session
	closed    bool
	// gen increments on every change requiring a poll restart.
	gen uint64
	// pendingSubscribe holds entities whose subscribe completion waits for
	// the next poll over them.
	pendingSubscribe []Entity
	// connectReported is set once connect failure was reported in the
	// current connect attempt.
	connectReported    bool
	connectReportedErr bool

	wg sync.WaitGroup
}

// New creates Client. Configure must be called before Connect.
func New(opts ...Option) *Client {
	c := &Client{
		hub:     fanout.NewHub(),
		members: membership.New(),
		tokens:  timetoken.New(),
		policy:  presence.NewPolicy(presence.ModeFullBatch),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	if c.opts.logger != nil {
		c.log = c.opts.logger.With().Str("component", "client").Logger()
	} else {
		c.log = log.With().Str("component", "client").Logger()
	}
	if c.opts.delegate != nil {
		c.hub.SetDelegate(c.opts.delegate)
	}
	return c
}

// Configure applies configuration. It's only allowed while disconnected.
// Messages waiting in outbound queue of previous configuration are canceled.
func (c *Client) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	mode, _ := presence.ParseMode(cfg.PresencePolicy)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: configure while %s", ErrInvalidState, c.state)
	}
	t := c.opts.transport
	if t == nil {
		tc := cfg.transportConfig()
		tc.HTTPClient = c.opts.httpClient
		var err error
		t, err = transport.NewHTTP(tc)
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.transport = t
	c.config = &cfg
	c.composer = compose.New(compose.Options{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		FilterExpression: cfg.FilterExpression,
	})
	c.policy = presence.NewPolicy(mode)
	c.backoff = backoff.Backoff{MinDelay: cfg.ReconnectMinDelay, MaxDelay: cfg.ReconnectMaxDelay}
	switch {
	case cfg.ClientID != "":
		c.clientID = cfg.ClientID
	case c.clientID == "":
		c.clientID = uuid.NewString()
	}
	prevQueue := c.queue
	c.queue = outbound.New(t, outbound.Config{
		RateLimit:  cfg.PublishRateLimit,
		Burst:      cfg.PublishBurst,
		OnComplete: c.onPublishComplete,
	})
	c.queue.Start()
	c.mu.Unlock()

	if prevQueue != nil {
		prevQueue.Close()
	}
	c.log.Debug().Str("origin", cfg.Origin).Str("client_id", c.ClientID()).Msg("client configured")
	return nil
}

// Config returns current configuration and whether client is configured.
func (c *Client) Config() (Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return Config{}, false
	}
	return *c.config, true
}

// Connect starts connection. The handshake is a poll over the current
// membership or, with empty membership, a time request. done is called
// with the first connection outcome: StatusConnected, or StatusConnectFailed
// after which client keeps retrying. Connect without configuration fails
// synchronously.
func (c *Client) Connect(done func(ConnectionEvent)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.config == nil {
		return ErrNoConfiguration
	}
	if c.state != StateDisconnected {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, c.state)
	}
	var completion fanout.Completion
	if done != nil {
		completion = func(ev fanout.Event) {
			if e, ok := ev.(fanout.ConnectionEvent); ok {
				done(e)
			}
		}
	}
	c.hub.SetCompletion(fanout.CallConnect, completion)
	c.setStateLocked(StateConnecting)
	c.connectReported = false
	c.connectReportedErr = false
	c.backoff.Reset()
	s := newSession()
	c.session = s
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(s)
	}()
	return nil
}

// Disconnect cancels in-flight poll, cancels messages waiting in outbound
// queue and moves client to StateDisconnected. Membership is kept and
// restored by the next Connect, time token is discarded. Completions of
// Connect and Subscribe calls still waiting for a poll are dropped. After
// Disconnect returns no poll request is issued until Connect and no event
// of the stopped connection is delivered after StatusDisconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnecting)
	s.stop()
	c.session = nil
	c.tokens.Reset()
	c.pendingSubscribe = nil
	c.hub.ClearCompletion(fanout.CallConnect)
	c.hub.ClearCompletion(fanout.CallSubscribe)
	c.setStateLocked(StateDisconnected)
	// Worker delivering an event emits StatusDisconnected after it.
	deferred := s.dispatching
	if deferred {
		s.disconnectPending = true
	}
	queue := c.queue
	c.mu.Unlock()

	if queue != nil {
		queue.Clear()
	}
	c.log.Debug().Msg("disconnected")
	if !deferred {
		c.hub.Emit(fanout.ConnectionEvent{Status: fanout.StatusDisconnected})
	}
}

// Close disconnects and stops outbound worker. Client can't be used after
// Close.
func (c *Client) Close() {
	c.Disconnect()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	queue := c.queue
	c.mu.Unlock()
	if queue != nil {
		queue.Close()
	}
	c.wg.Wait()
}

// State returns connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether client is in StateSubscribed.
func (c *Client) IsConnected() bool {
	return c.State() == StateSubscribed
}

// Cursor returns current stream position and connection epoch.
func (c *Client) Cursor() (Cursor, uint64) {
	return c.tokens.Snapshot()
}

// SetDelegate sets delegate receiving events through the methods of
// fanout listener interfaces it implements: OnConnection, OnSubscription,
// OnUnsubscription, OnMessage, OnPresence, OnPublish, OnIdentity, OnError.
// nil removes delegate.
func (c *Client) SetDelegate(d any) {
	c.hub.SetDelegate(d)
}

// Observe registers fn for events of given categories. Returned handle
// removes the registration.
func (c *Client) Observe(categories Category, filter Filter, fn func(Event)) (ObserverHandle, error) {
	return c.hub.Observe(categories, filter, fn)
}

// RemoveObserver removes registration, returns false if it was not found.
func (c *Client) RemoveObserver(h ObserverHandle) bool {
	return c.hub.Unobserve(h)
}

// Time returns current server time token.
func (c *Client) Time(ctx context.Context) (string, error) {
	t, err := c.configuredTransport()
	if err != nil {
		return "", err
	}
	return t.Time(ctx)
}

func (c *Client) configuredTransport() (transport.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.config == nil {
		return nil, ErrNoConfiguration
	}
	return c.transport, nil
}

func (c *Client) requestTimeout() time.Duration {
	if c.config != nil && c.config.RequestTimeout > 0 {
		return c.config.RequestTimeout
	}
	return transport.DefaultRequestTimeout
}

// Must be called with mu held.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("state changed")
	c.state = s
	metrics.SetConnectionState(s.String())
}

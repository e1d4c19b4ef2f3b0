package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/centrifugal/subclient/internal/compose"
	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/fanout"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/metrics"
	"github.com/centrifugal/subclient/internal/presence"
	"github.com/centrifugal/subclient/internal/timers"
	"github.com/centrifugal/subclient/internal/transport"

	"github.com/segmentio/encoding/json"
)

// session is a single Connect..Disconnect lineage served by one poll worker.
type session struct {
	quit chan struct{}
	// wake interrupts idle and backoff waits.
	wake chan struct{}
	// cancel aborts in-flight request, guarded by Client.mu.
	cancel context.CancelFunc
	// dispatching is set while worker delivers an event and
	// disconnectPending when Disconnect happened meanwhile, so that
	// StatusDisconnected follows the delivered event. Guarded by Client.mu.
	dispatching       bool
	disconnectPending bool
}

func newSession() *session {
	return &session{
		quit: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

// Must be called with Client.mu held.
func (s *session) stop() {
	close(s.quit)
	if s.cancel != nil {
		s.cancel()
	}
}

// Must be called with Client.mu held.
func (s *session) interrupt() {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d, wake or quit. Returns false on quit.
func (s *session) sleep(d time.Duration) bool {
	tm := timers.AcquireTimer(d)
	defer timers.ReleaseTimer(tm)
	select {
	case <-tm.C:
		return true
	case <-s.wake:
		return true
	case <-s.quit:
		return false
	}
}

// idle waits for wake or quit. Returns false on quit.
func (s *session) idle() bool {
	select {
	case <-s.wake:
		return true
	case <-s.quit:
		return false
	}
}

// emissions collects events under lock to dispatch them after unlock.
type emissions []emission

type emission struct {
	call     fanout.CallKind
	seq      uint64
	complete bool
	event    fanout.Event
}

func (e *emissions) emit(ev fanout.Event) {
	*e = append(*e, emission{event: ev})
}

// complete adds result of call seq of kind k.
func (e *emissions) complete(k fanout.CallKind, seq uint64, ev fanout.Event) {
	*e = append(*e, emission{call: k, seq: seq, complete: true, event: ev})
}

func (c *Client) deliver(em emission) {
	if em.complete {
		c.hub.Complete(em.call, em.seq, em.event)
	} else {
		c.hub.Emit(em.event)
	}
}

func (c *Client) dispatch(e emissions) {
	for _, em := range e {
		c.deliver(em)
	}
}

// dispatchSession delivers events produced by worker of session s. Once s
// is stopped the remaining events are dropped, so no event of a session
// is delivered after its StatusDisconnected.
func (c *Client) dispatchSession(s *session, e emissions) {
	for _, em := range e {
		c.mu.Lock()
		if c.session != s {
			c.mu.Unlock()
			return
		}
		s.dispatching = true
		c.mu.Unlock()

		c.deliver(em)

		c.mu.Lock()
		s.dispatching = false
		pending := s.disconnectPending
		s.disconnectPending = false
		c.mu.Unlock()
		if pending {
			c.hub.Emit(fanout.ConnectionEvent{Status: fanout.StatusDisconnected})
			return
		}
	}
}

// pollRequest is what worker should do next.
type pollRequest struct {
	req *compose.Request
	gen uint64
	// handshake with empty membership, performed by time request.
	timeHandshake bool
}

// run is the poll worker loop. At most one request is in flight.
func (c *Client) run(s *session) {
	for {
		c.mu.Lock()
		if c.session != s {
			c.mu.Unlock()
			return
		}
		select {
		case <-s.wake:
		default:
		}
		next, ok := c.nextPollLocked()
		if !ok {
			c.mu.Unlock()
			if !s.idle() {
				return
			}
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		t := c.transport
		timeout := c.requestTimeout()
		c.mu.Unlock()

		started := time.Now()
		if next.timeHandshake {
			tctx, tcancel := context.WithTimeout(ctx, timeout)
			_, err := t.Time(tctx)
			canceled := ctx.Err() != nil
			tcancel()
			cancel()
			c.handleTimeHandshake(s, canceled, err)
			continue
		}
		resp, err := t.Subscribe(ctx, next.req)
		canceled := ctx.Err() != nil
		cancel()
		if canceled {
			metrics.ObservePoll(started, metrics.ResultCancel)
		} else if err != nil {
			if transport.IsTokenExpired(err) {
				metrics.ObservePoll(started, metrics.ResultExpired)
			} else {
				metrics.ObservePoll(started, metrics.ResultError)
			}
		} else {
			metrics.ObservePoll(started, metrics.ResultOK)
		}
		var delay time.Duration
		if err != nil {
			delay = c.handlePollError(s, canceled, next, err)
		} else {
			c.handlePollResponse(s, next, resp)
		}
		if delay > 0 {
			if !s.sleep(delay) {
				return
			}
		}
	}
}

// nextPollLocked composes the next request. Returns false when there is
// nothing to poll. Must be called with mu held.
func (c *Client) nextPollLocked() (pollRequest, bool) {
	members := c.members.Members()
	if len(members) == 0 {
		if c.state == StateConnecting || c.state == StateReconnecting {
			return pollRequest{gen: c.gen, timeHandshake: true}, true
		}
		return pollRequest{}, false
	}
	cursor, epoch := c.tokens.Snapshot()
	req, err := c.composer.Build(members, cursor, epoch, c.clientID)
	if err != nil {
		// Membership is validated on mutation.
		panic("compose poll request: " + err.Error())
	}
	return pollRequest{req: req, gen: c.gen}, true
}

func (c *Client) handleTimeHandshake(s *session, canceled bool, err error) {
	c.mu.Lock()
	if c.session != s || canceled {
		c.mu.Unlock()
		return
	}
	var out emissions
	if err != nil {
		delay := c.failLocked(err, &out)
		c.mu.Unlock()
		c.dispatchSession(s, out)
		if delay > 0 {
			s.sleep(delay)
		}
		return
	}
	c.connectedLocked(&out)
	c.mu.Unlock()
	c.dispatchSession(s, out)
}

// connectedLocked moves client to StateSubscribed. Must be called with mu held.
func (c *Client) connectedLocked(out *emissions) {
	prev := c.state
	c.backoff.Reset()
	if prev == StateSubscribed {
		return
	}
	c.setStateLocked(StateSubscribed)
	cursor, epoch := c.tokens.Snapshot()
	switch prev {
	case StateConnecting:
		c.log.Info().Str("client_id", c.clientID).Int("entities", c.members.Len()).Msg("connected")
		out.complete(fanout.CallConnect, c.hub.Seq(fanout.CallConnect),
			fanout.ConnectionEvent{Status: fanout.StatusConnected, Token: cursor.Token, Epoch: epoch})
		c.presenceLocked(c.policy.Subscribe(nil, c.members.Members()), out)
	case StateReconnecting:
		c.log.Info().Msg("connection restored")
		out.emit(fanout.ConnectionEvent{Status: fanout.StatusReconnected, Token: cursor.Token, Epoch: epoch})
	}
}

func (c *Client) handlePollResponse(s *session, next pollRequest, resp *transport.Response) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	var out emissions
	if !c.tokens.Update(next.req.Epoch, resp.Cursor) && next.req.Epoch != c.tokens.Epoch() {
		// Response of a discarded lineage.
		c.log.Debug().Uint64("epoch", next.req.Epoch).Msg("drop response of previous epoch")
		c.connectedLocked(&out)
		c.mu.Unlock()
		c.dispatchSession(s, out)
		return
	}
	c.connectedLocked(&out)
	if next.gen == c.gen && len(c.pendingSubscribe) > 0 {
		// Coalesced subscribe calls are reported together to the latest one.
		out.complete(fanout.CallSubscribe, c.hub.Seq(fanout.CallSubscribe),
			fanout.SubscriptionEvent{Subscribed: c.pendingSubscribe})
		c.pendingSubscribe = nil
	}
	for _, ev := range resp.Events {
		if e, ok := c.convertLocked(ev); ok {
			out.emit(e)
		}
	}
	c.mu.Unlock()
	c.dispatchSession(s, out)
}

// handlePollError classifies failure and returns delay before next attempt.
func (c *Client) handlePollError(s *session, canceled bool, next pollRequest, err error) time.Duration {
	c.mu.Lock()
	if c.session != s || canceled || errors.Is(err, context.Canceled) {
		// Disconnected or restarted.
		c.mu.Unlock()
		return 0
	}
	var out emissions
	var delay time.Duration
	switch {
	case transport.IsTokenExpired(err) && !next.req.Handshake():
		c.log.Warn().Err(err).Str("token", next.req.Cursor.Token).Msg("time token expired, continue from now")
		metrics.CatchUpResetsTotal.Inc()
		epoch := c.tokens.Reset()
		out.emit(fanout.ConnectionEvent{Status: fanout.StatusCatchUpFailed, Err: err, Epoch: epoch})
	case c.entityFailureLocked(next, err, &out):
	default:
		delay = c.failLocked(err, &out)
	}
	c.mu.Unlock()
	c.dispatchSession(s, out)
	return delay
}

// entityFailureLocked handles server rejection of particular entities:
// they are removed from membership and reported to subscribe completion.
// Returns false if error does not name any member.
func (c *Client) entityFailureLocked(next pollRequest, err error, out *emissions) bool {
	var te *transport.Error
	if !errors.As(err, &te) || te.Kind != transport.KindServer {
		return false
	}
	var failed []entity.Entity
	for _, e := range te.Entities() {
		if c.members.Contains(e) {
			failed = append(failed, e)
		}
	}
	if len(failed) == 0 {
		return false
	}
	c.log.Error().Err(err).Stringer("entities", entityList(failed)).Msg("server rejected subscription")
	c.members.Remove(failed...)
	metrics.SubscribedEntities.Set(float64(c.members.Len()))
	c.pendingSubscribe = slicesDeleteEntities(c.pendingSubscribe, failed)
	c.gen++
	out.complete(fanout.CallSubscribe, c.hub.Seq(fanout.CallSubscribe), fanout.SubscriptionEvent{Failed: failed, Err: err})
	return true
}

// failLocked handles a failed attempt according to state and returns
// backoff delay. Must be called with mu held.
func (c *Client) failLocked(err error, out *emissions) time.Duration {
	kind := transport.KindOf(err)
	serverErr := kind == transport.KindServer || kind == transport.KindTokenExpired
	var reported error
	if serverErr {
		reported = err
	}
	switch c.state {
	case StateConnecting:
		if !c.connectReported || (serverErr && !c.connectReportedErr) {
			c.connectReported = true
			c.connectReportedErr = serverErr
			out.complete(fanout.CallConnect, c.hub.Seq(fanout.CallConnect),
				fanout.ConnectionEvent{Status: fanout.StatusConnectFailed, Err: reported})
		}
	case StateSubscribed:
		c.setStateLocked(StateReconnecting)
		metrics.ReconnectsTotal.Inc()
		if !c.config.CatchUpOnRestore {
			c.tokens.Reset()
		}
		out.emit(fanout.ConnectionEvent{Status: fanout.StatusReconnecting, Err: reported})
	}
	delay := c.backoff.Next()
	ev := c.log.Info()
	if serverErr {
		ev = c.log.Error()
	}
	ev.Err(err).Str("state", c.state.String()).Dur("delay", delay).Msg("poll failed, retrying")
	return delay
}

// convertLocked maps raw event to message or presence event. Events of
// entities no longer subscribed are dropped.
func (c *Client) convertLocked(ev transport.Event) (fanout.Event, bool) {
	matched, ok := c.matchLocked(ev)
	if !ok {
		c.log.Debug().Str("channel", ev.Channel).Msg("drop event of unsubscribed entity")
		return nil, false
	}
	if strings.HasSuffix(ev.Channel, entity.PresenceSuffix) {
		p, err := transport.ParsePresencePayload(ev.Payload)
		if err != nil {
			c.log.Error().Err(err).Str("channel", ev.Channel).Msg("malformed presence event")
			return fanout.ErrorEvent{Err: err, Related: []entity.Entity{matched}}, true
		}
		pe := fanout.PresenceEvent{
			Entity:    entity.Channel(ev.Channel).WithoutPresence(),
			Action:    presence.Action(p.Action),
			ClientID:  p.ClientID,
			Occupancy: p.Occupancy,
			Timestamp: p.Timestamp,
		}
		if len(p.State) > 0 {
			var st membership.State
			if err := json.Unmarshal(p.State, &st); err == nil {
				pe.State = st
			}
		}
		return pe, true
	}
	return fanout.MessageEvent{
		Entity:  matched,
		Channel: ev.Channel,
		Payload: ev.Payload,
		Meta:    ev.Meta,
		Issuer:  ev.Issuer,
		Token:   ev.Cursor.Token,
		Signal:  ev.Type == transport.EventTypeSignal,
	}, true
}

func (c *Client) matchLocked(ev transport.Event) (entity.Entity, bool) {
	if ev.Subscription != "" {
		if g, err := entity.ParseGroup(ev.Subscription); err == nil && c.members.Contains(g) {
			return g, true
		}
		if ch := entity.Channel(ev.Subscription); c.members.Contains(ch) {
			return ch, true
		}
	}
	ch := entity.Channel(ev.Channel)
	return ch, c.members.Contains(ch)
}

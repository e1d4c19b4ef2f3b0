package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/fanout"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/metrics"
	"github.com/centrifugal/subclient/internal/presence"
)

// SubscribeOption configures Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	state    MemberState
	presence bool
	done     func(SubscriptionEvent)
}

// WithState attaches client state to every subscribed entity. State must
// be flat: string, number or boolean values.
func WithState(st MemberState) SubscribeOption {
	return func(o *subscribeOptions) { o.state = st }
}

// WithPresence also subscribes presence companions of entities.
func WithPresence() SubscribeOption {
	return func(o *subscribeOptions) { o.presence = true }
}

// OnSubscribed sets completion called with the result of this subscribe.
// A later Subscribe call replaces it, also when it passes no completion.
func OnSubscribed(fn func(SubscriptionEvent)) SubscribeOption {
	return func(o *subscribeOptions) { o.done = fn }
}

// UnsubscribeOption configures Unsubscribe call.
type UnsubscribeOption func(*unsubscribeOptions)

type unsubscribeOptions struct {
	done func(UnsubscriptionEvent)
}

// OnUnsubscribed sets completion called with the result of this unsubscribe.
// A later Unsubscribe call replaces it, also when it passes no completion.
func OnUnsubscribed(fn func(UnsubscriptionEvent)) UnsubscribeOption {
	return func(o *unsubscribeOptions) { o.done = fn }
}

// Subscribe merges entities into membership, overwriting state of already
// subscribed ones, and restarts the poll over the whole resulting set.
// Subscribing to unchanged membership is a no-op completed immediately.
func (c *Client) Subscribe(entities []Entity, opts ...SubscribeOption) error {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	entities = entity.Unique(entities)
	if len(entities) == 0 {
		return ErrNoEntities
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	members := make([]membership.Member, 0, len(entities)*2)
	for _, e := range entities {
		members = append(members, membership.Member{Entity: e, State: o.state})
		if o.presence && !e.IsPresence() {
			members = append(members, membership.Member{Entity: e.WithPresence()})
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.members.Members()
	changed, err := c.members.Add(members...)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	subscribed := membership.Entities(members)
	var completion fanout.Completion
	if o.done != nil {
		completion = func(ev fanout.Event) {
			if e, ok := ev.(fanout.SubscriptionEvent); ok {
				o.done(e)
			}
		}
	}
	seq := c.hub.SetCompletion(fanout.CallSubscribe, completion)
	var out emissions
	switch {
	case c.session == nil || !changed:
		out.complete(fanout.CallSubscribe, seq, fanout.SubscriptionEvent{Subscribed: subscribed})
	default:
		c.pendingSubscribe = appendMissing(c.pendingSubscribe, subscribed)
		if c.connectionEstablishedLocked() {
			c.presenceLocked(c.policy.Subscribe(prev, c.members.Members()), &out)
		}
		c.membershipChangedLocked()
	}
	c.mu.Unlock()

	c.log.Debug().Stringer("entities", entityList(subscribed)).Bool("changed", changed).Msg("subscribe")
	c.dispatch(out)
	return nil
}

// Unsubscribe removes entities from membership, restarts the poll and
// announces leave to server. With empty membership poll worker idles until
// the next Subscribe.
func (c *Client) Unsubscribe(entities []Entity, opts ...UnsubscribeOption) error {
	var o unsubscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	entities = entity.Unique(entities)
	if len(entities) == 0 {
		return ErrNoEntities
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	removed := c.members.Remove(entities...)
	if len(removed) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, entityList(entities))
	}
	var completion fanout.Completion
	if o.done != nil {
		completion = func(ev fanout.Event) {
			if e, ok := ev.(fanout.UnsubscriptionEvent); ok {
				o.done(e)
			}
		}
	}
	seq := c.hub.SetCompletion(fanout.CallUnsubscribe, completion)
	unsubscribed := membership.Entities(removed)
	c.pendingSubscribe = slicesDeleteEntities(c.pendingSubscribe, unsubscribed)
	var out emissions
	connected := c.connectionEstablishedLocked()
	if connected {
		c.presenceLocked(c.policy.Unsubscribe(removed), &out)
	}
	if c.session != nil {
		c.membershipChangedLocked()
	}
	clientID := c.clientID
	c.mu.Unlock()

	c.log.Debug().Stringer("entities", entityList(unsubscribed)).Msg("unsubscribe")
	c.dispatch(out)
	if !connected {
		c.hub.Complete(fanout.CallUnsubscribe, seq, fanout.UnsubscriptionEvent{Unsubscribed: unsubscribed})
		return nil
	}
	// Leave requests of consecutive calls may finish in any order, the
	// result reaches completion only if no later call replaced it.
	c.leave(clientID, unsubscribed, func(err error, failed []Entity) {
		c.hub.Complete(fanout.CallUnsubscribe, seq, fanout.UnsubscriptionEvent{
			Unsubscribed: unsubscribed,
			Failed:       failed,
			Err:          err,
		})
	})
	return nil
}

// SetState replaces client state of a subscribed entity. When connected
// the poll is restarted to announce new state.
func (c *Client) SetState(e Entity, st MemberState) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ok, err := c.members.SetState(e, st)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, e)
	}
	var out emissions
	if c.connectionEstablishedLocked() {
		c.presenceLocked(c.policy.StateChange(membership.Member{Entity: e, State: st}), &out)
	}
	if c.session != nil {
		c.gen++
		c.session.interrupt()
	}
	c.mu.Unlock()
	c.dispatch(out)
	return nil
}

// SetClientID changes client identifier. Membership is left under the
// previous identifier and joined under the new one. With catchUp the
// stream continues from the held time token, otherwise from now and events
// published during the switch are not delivered.
func (c *Client) SetClientID(id string, catchUp bool, done func(IdentityEvent)) error {
	if id == "" {
		return ErrEmptyClientID
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var completion fanout.Completion
	if done != nil {
		completion = func(ev fanout.Event) {
			if e, ok := ev.(fanout.IdentityEvent); ok {
				done(e)
			}
		}
	}
	seq := c.hub.SetCompletion(fanout.CallIdentity, completion)
	prevID := c.clientID
	var out emissions
	ev := fanout.IdentityEvent{Previous: prevID, Current: id, CatchUp: catchUp}
	if prevID == id {
		out.complete(fanout.CallIdentity, seq, ev)
		c.mu.Unlock()
		c.dispatch(out)
		return nil
	}
	c.clientID = id
	members := c.members.Members()
	connected := c.connectionEstablishedLocked()
	if c.session != nil && len(members) > 0 {
		if !catchUp {
			c.tokens.Reset()
		}
		if connected {
			c.presenceWithIDLocked(c.policy.Rejoin(members), prevID, id, &out)
		}
		c.gen++
		c.session.interrupt()
	}
	out.complete(fanout.CallIdentity, seq, ev)
	c.mu.Unlock()

	c.log.Info().Str("previous", prevID).Str("current", id).Bool("catch_up", catchUp).Msg("client id changed")
	c.dispatch(out)
	if connected && len(members) > 0 {
		c.leave(prevID, membership.Entities(members), nil)
	}
	return nil
}

// ClientID returns client identifier.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// IsSubscribedOn reports whether entity is in membership. Membership is
// kept while disconnected and restored on Connect.
func (c *Client) IsSubscribedOn(e Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members.Contains(e)
}

// Subscriptions returns subscribed entities in subscription order.
func (c *Client) Subscriptions() []Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members.Entities()
}

// StateOf returns client state attached to a subscribed entity.
func (c *Client) StateOf(e Entity) (MemberState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members.State(e)
}

// leave announces leave asynchronously, result is passed to done.
func (c *Client) leave(clientID string, entities []Entity, done func(error, []Entity)) {
	entities = slices.DeleteFunc(slices.Clone(entities), Entity.IsPresence)
	c.mu.Lock()
	t := c.transport
	timeout := c.requestTimeout()
	c.mu.Unlock()
	if len(entities) == 0 || t == nil {
		if done != nil {
			done(nil, nil)
		}
		return
	}
	channels, groups := entity.Split(entities)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := t.Leave(ctx, clientID, channels, groups)
		var failed []Entity
		if err != nil {
			c.log.Error().Err(err).Str("client_id", clientID).Msg("leave failed")
			failed = entities
			var te *TransportError
			if errors.As(err, &te) && len(te.Entities()) > 0 {
				failed = te.Entities()
			}
		}
		if done != nil {
			done(err, failed)
		}
	}()
}

// connectionEstablishedLocked reports whether server has seen this client
// in the current session.
func (c *Client) connectionEstablishedLocked() bool {
	return c.session != nil && (c.state == StateSubscribed || c.state == StateReconnecting)
}

// membershipChangedLocked restarts poll after membership change.
func (c *Client) membershipChangedLocked() {
	metrics.SubscribedEntities.Set(float64(c.members.Len()))
	if c.config != nil && !c.config.KeepTokenOnListChange {
		c.tokens.Reset()
	}
	c.gen++
	if c.session != nil {
		c.session.interrupt()
	}
}

func (c *Client) presenceLocked(changes []presence.Change, out *emissions) {
	c.presenceWithIDLocked(changes, c.clientID, c.clientID, out)
}

// presenceWithIDLocked emits local presence events, leaves are attributed
// to leaveID and the rest to joinID.
func (c *Client) presenceWithIDLocked(changes []presence.Change, leaveID, joinID string, out *emissions) {
	for _, ch := range changes {
		id := joinID
		if ch.Action == presence.ActionLeave {
			id = leaveID
		}
		out.emit(fanout.PresenceEvent{
			Entity:   ch.Entity,
			Action:   ch.Action,
			ClientID: id,
			State:    ch.State,
			Local:    true,
		})
	}
}

type entityList []Entity

func (l entityList) String() string {
	names := make([]string, len(l))
	for i, e := range l {
		names[i] = e.String()
	}
	return strings.Join(names, ",")
}

func appendMissing(dst, src []Entity) []Entity {
	for _, e := range src {
		if !slices.Contains(dst, e) {
			dst = append(dst, e)
		}
	}
	return dst
}

func slicesDeleteEntities(s, remove []Entity) []Entity {
	return slices.DeleteFunc(s, func(e Entity) bool {
		return slices.Contains(remove, e)
	})
}

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/centrifugal/subclient/internal/transport"

	"github.com/stretchr/testify/require"
)

var errNetwork = &transport.Error{Kind: transport.KindTransport, Err: errors.New("connection refused")}

func TestConnectWithoutConfiguration(t *testing.T) {
	c := New(WithTransport(newFakeTransport()))
	defer c.Close()
	called := false
	err := c.Connect(func(ConnectionEvent) { called = true })
	require.ErrorIs(t, err, ErrNoConfiguration)
	require.False(t, called)
	require.Equal(t, StateDisconnected, c.State())
}

func TestConnectTwice(t *testing.T) {
	c, _, events := newTestClient(t)
	connectIdle(t, c, events)
	err := c.Connect(nil)
	require.ErrorIs(t, err, ErrAlreadyConnected)
	require.Equal(t, StateSubscribed, c.State())
}

func TestConnectIdleUsesTimeHandshake(t *testing.T) {
	c, ft, events := newTestClient(t)
	done := make(chan ConnectionEvent, 1)
	require.NoError(t, c.Connect(func(ev ConnectionEvent) { done <- ev }))
	select {
	case ev := <-done:
		require.Equal(t, StatusConnected, ev.Status)
		require.NoError(t, ev.Err)
	case <-time.After(waitTimeout):
		t.Fatal("no connect completion")
	}
	ft.mu.Lock()
	require.Equal(t, 1, ft.timeCalls)
	ft.mu.Unlock()
	require.True(t, c.IsConnected())
	ft.noPoll(t, 50*time.Millisecond)
	require.Equal(t, 1, events.count(func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusConnected
	}))
}

func TestConnectHandshakePoll(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.Empty(t, events.localPresence())

	done := make(chan ConnectionEvent, 1)
	require.NoError(t, c.Connect(func(ev ConnectionEvent) { done <- ev }))
	require.Equal(t, StateConnecting, c.State())

	p := ft.nextPoll(t)
	require.True(t, p.req.Handshake())
	require.Equal(t, []string{"a"}, p.req.Channels)
	require.Equal(t, "userA", p.req.ClientID)
	p.respond("100")

	ev := <-done
	require.Equal(t, StatusConnected, ev.Status)
	require.Equal(t, "100", ev.Token)

	p = ft.nextPoll(t)
	require.Equal(t, "100", p.req.Cursor.Token)
	p.respond("101")
	p = ft.nextPoll(t)
	require.Equal(t, "101", p.req.Cursor.Token)

	presence := events.localPresence()
	require.Len(t, presence, 1)
	require.Equal(t, ActionJoin, presence[0].Action)
	require.Equal(t, Channel("a"), presence[0].Entity)

	// Repeated successes don't re-emit connected.
	require.Equal(t, 1, events.count(func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusConnected
	}))
}

func TestMessagesKeepServerOrderAfterTokenUpdate(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")

	var mu sync.Mutex
	var payloads []string
	var tokens []string
	_, err := c.Observe(CategoryMessage, Filter{}, func(ev Event) {
		cur, _ := c.Cursor()
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, string(ev.(MessageEvent).Payload))
		tokens = append(tokens, cur.Token)
	})
	require.NoError(t, err)

	ft.nextPoll(t).respond("200",
		PollEvent{Channel: "a", Payload: []byte(`1`)},
		PollEvent{Channel: "a", Payload: []byte(`2`)},
		PollEvent{Channel: "a", Payload: []byte(`3`)},
	)
	events.waitFor(t, func(ev Event) bool {
		m, ok := ev.(MessageEvent)
		return ok && string(m.Payload) == "3"
	})
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"1", "2", "3"}, payloads)
	require.Equal(t, []string{"200", "200", "200"}, tokens)
}

func TestServerEventsConversion(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a"), Group("", "g1")}, WithPresence()))
	require.True(t, c.IsSubscribedOn(Channel("a").WithPresence()))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")

	ft.nextPoll(t).respond("101",
		PollEvent{Channel: "zzz", Payload: []byte(`"dropped"`)},
		PollEvent{Channel: "x", Subscription: "g1", Payload: []byte(`"group"`)},
		PollEvent{Channel: "a", Payload: []byte(`"signal"`), Type: transport.EventTypeSignal, Issuer: "u3"},
		PollEvent{Channel: "a-pnpres", Payload: []byte(`{"action":"join","uuid":"u2","occupancy":2,"timestamp":7,"data":{"k":"v"}}`)},
	)

	ev := events.waitFor(t, func(ev Event) bool { _, ok := ev.(MessageEvent); return ok }).(MessageEvent)
	require.Equal(t, Group("", "g1"), ev.Entity)
	require.Equal(t, "x", ev.Channel)
	require.Equal(t, `"group"`, string(ev.Payload))

	ev = events.waitFor(t, func(ev Event) bool { _, ok := ev.(MessageEvent); return ok }).(MessageEvent)
	require.True(t, ev.Signal)
	require.Equal(t, "u3", ev.Issuer)
	require.Equal(t, Channel("a"), ev.Entity)

	pe := events.waitFor(t, func(ev Event) bool {
		p, ok := ev.(PresenceEvent)
		return ok && !p.Local
	}).(PresenceEvent)
	require.Equal(t, Channel("a"), pe.Entity)
	require.Equal(t, ActionJoin, pe.Action)
	require.Equal(t, "u2", pe.ClientID)
	require.Equal(t, 2, pe.Occupancy)
	require.Equal(t, int64(7), pe.Timestamp)
	require.Equal(t, "v", pe.State["k"])

	require.Equal(t, 0, events.count(func(ev Event) bool {
		m, ok := ev.(MessageEvent)
		return ok && m.Channel == "zzz"
	}))
}

func TestReconnectCatchesUp(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")

	ft.nextPoll(t).fail(errNetwork)
	ev := events.waitStatus(t, StatusReconnecting)
	require.NoError(t, ev.Err)
	require.Equal(t, StateReconnecting, c.State())

	ft.nextPoll(t).fail(errNetwork)
	p := ft.nextPoll(t)
	require.Equal(t, "100", p.req.Cursor.Token)
	p.respond("150")
	ev = events.waitStatus(t, StatusReconnected)
	require.Equal(t, "150", ev.Token)
	require.True(t, c.IsConnected())

	require.Equal(t, 1, events.count(func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusReconnecting
	}))
}

func TestReconnectWithoutCatchUp(t *testing.T) {
	c, ft, events := newTestClient(t, func(cfg *Config) { cfg.CatchUpOnRestore = false })
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")
	ft.nextPoll(t).fail(errNetwork)
	events.waitStatus(t, StatusReconnecting)
	p := ft.nextPoll(t)
	require.True(t, p.req.Handshake())
}

func TestTokenExpiredFallsBackToNow(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")

	p := ft.nextPoll(t)
	require.Equal(t, "100", p.req.Cursor.Token)
	p.fail(&transport.Error{Kind: transport.KindTokenExpired, StatusCode: 410, Message: "Gone"})
	ev := events.waitStatus(t, StatusCatchUpFailed)
	require.Error(t, ev.Err)
	require.Greater(t, ev.Epoch, p.req.Epoch)

	next := ft.nextPoll(t)
	require.True(t, next.req.Handshake())
	require.Equal(t, ev.Epoch, next.req.Epoch)
	next.respond("500")
	require.Equal(t, StateSubscribed, c.State())
}

func TestConnectFailureReporting(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	done := make(chan ConnectionEvent, 2)
	require.NoError(t, c.Connect(func(ev ConnectionEvent) { done <- ev }))

	ft.nextPoll(t).fail(errNetwork)
	ev := <-done
	require.Equal(t, StatusConnectFailed, ev.Status)
	require.NoError(t, ev.Err, "network failure is reported without error payload")
	require.Equal(t, StateConnecting, c.State())

	// Silent retry on further network failures.
	ft.nextPoll(t).fail(errNetwork)

	ft.nextPoll(t).fail(&transport.Error{Kind: transport.KindServer, StatusCode: 403, Message: "Forbidden"})
	failed := events.waitFor(t, func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusConnectFailed && e.Err != nil
	}).(ConnectionEvent)
	var te *TransportError
	require.ErrorAs(t, failed.Err, &te)
	require.Equal(t, 403, te.StatusCode)

	ft.nextPoll(t).respond("100")
	events.waitStatus(t, StatusConnected)
	require.Len(t, done, 0, "completion fires once")
	require.Equal(t, 2, events.count(func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusConnectFailed
	}))
}

func TestServerRejectsEntities(t *testing.T) {
	c, ft, events := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a"), Channel("b")}))
	require.NoError(t, c.Connect(nil))

	ft.nextPoll(t).fail(&transport.Error{Kind: transport.KindServer, StatusCode: 403, Channels: []string{"b"}})
	ev := events.waitFor(t, func(ev Event) bool {
		e, ok := ev.(SubscriptionEvent)
		return ok && len(e.Failed) > 0
	}).(SubscriptionEvent)
	require.Equal(t, []Entity{Channel("b")}, ev.Failed)
	require.Error(t, ev.Err)
	require.False(t, c.IsSubscribedOn(Channel("b")))
	require.True(t, c.IsSubscribedOn(Channel("a")))

	p := ft.nextPoll(t)
	require.Equal(t, []string{"a"}, p.req.Channels)
}

func TestDisconnectFinality(t *testing.T) {
	c, ft, events := newTestClient(t, func(cfg *Config) {
		cfg.ReconnectMinDelay = 300 * time.Millisecond
		cfg.ReconnectMaxDelay = time.Second
	})
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	ft.nextPoll(t).respond("100")
	ft.nextPoll(t).fail(errNetwork)
	events.waitStatus(t, StatusReconnecting)

	c.Disconnect()
	require.Equal(t, StateDisconnected, c.State())
	events.waitStatus(t, StatusDisconnected)
	ft.noPoll(t, 700*time.Millisecond)

	cursor, _ := c.Cursor()
	require.True(t, cursor.IsZero())
	require.True(t, c.IsSubscribedOn(Channel("a")), "membership kept while disconnected")

	// Disconnect twice is no-op.
	c.Disconnect()
	require.Equal(t, 1, events.count(func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == StatusDisconnected
	}))

	require.NoError(t, c.Connect(nil))
	p := ft.nextPoll(t)
	require.True(t, p.req.Handshake())
	require.Equal(t, []string{"a"}, p.req.Channels)
}

func TestDisconnectCancelsInflightPoll(t *testing.T) {
	c, ft, _ := newTestClient(t)
	require.NoError(t, c.Subscribe([]Entity{Channel("a")}))
	require.NoError(t, c.Connect(nil))
	p := ft.nextPoll(t)
	c.Disconnect()
	select {
	case <-p.ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("poll not canceled")
	}
	ft.noPoll(t, 100*time.Millisecond)
}

func TestDisconnectFromListenerStopsDelivery(t *testing.T) {
	c, ft, events := newTestClient(t)
	subscribed(t, c, ft, events, "100", Channel("a"))

	var once sync.Once
	_, err := c.Observe(CategoryMessage, Filter{}, func(Event) {
		once.Do(c.Disconnect)
	})
	require.NoError(t, err)

	ft.nextPoll(t).respond("101",
		PollEvent{Channel: "a", Payload: []byte(`"1"`)},
		PollEvent{Channel: "a", Payload: []byte(`"2"`)},
	)
	events.waitStatus(t, StatusDisconnected)
	ft.noPoll(t, 50*time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	last, ok := events.events[len(events.events)-1].(ConnectionEvent)
	require.True(t, ok)
	require.Equal(t, StatusDisconnected, last.Status)
	messages := 0
	for _, ev := range events.events {
		if _, ok := ev.(MessageEvent); ok {
			messages++
		}
	}
	require.Equal(t, 1, messages)
}

func TestConfigureWhileConnected(t *testing.T) {
	c, _, events := newTestClient(t)
	connectIdle(t, c, events)
	require.ErrorIs(t, c.Configure(testConfig()), ErrInvalidState)
	c.Disconnect()
	require.NoError(t, c.Configure(testConfig()))
}

func TestClosedClient(t *testing.T) {
	c, _, events := newTestClient(t)
	connectIdle(t, c, events)
	c.Close()
	c.Close()
	require.ErrorIs(t, c.Connect(nil), ErrClosed)
	require.ErrorIs(t, c.Subscribe([]Entity{Channel("a")}), ErrClosed)
	_, err := c.Publish("a", []byte(`{}`), PublishOptions{})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Configure(testConfig()), ErrClosed)
}

type connectionDelegate struct {
	mu       sync.Mutex
	statuses []ConnectionStatus
}

func (d *connectionDelegate) OnConnection(e ConnectionEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, e.Status)
}

func TestDelegateReceivesCapabilities(t *testing.T) {
	d := &connectionDelegate{}
	ft := newFakeTransport()
	c := New(WithTransport(ft), WithDelegate(d))
	defer c.Close()
	require.NoError(t, c.Configure(testConfig()))
	events := newEventLog()
	_, err := c.Observe(CategoryConnection, Filter{}, events.observe)
	require.NoError(t, err)
	connectIdle(t, c, events)
	c.Disconnect()
	events.waitStatus(t, StatusDisconnected)

	d.mu.Lock()
	require.Equal(t, []ConnectionStatus{StatusConnected, StatusDisconnected}, d.statuses)
	d.mu.Unlock()

	c.SetDelegate(nil)
	connectIdle(t, c, events)
	d.mu.Lock()
	require.Len(t, d.statuses, 2)
	d.mu.Unlock()
}

func TestRemoveObserver(t *testing.T) {
	c, _, events := newTestClient(t)
	calls := 0
	var mu sync.Mutex
	h, err := c.Observe(CategoryConnection, Filter{}, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.True(t, c.RemoveObserver(h))
	connectIdle(t, c, events)
	mu.Lock()
	require.Equal(t, 0, calls)
	mu.Unlock()
}

func TestTime(t *testing.T) {
	c := New(WithTransport(newFakeTransport()))
	defer c.Close()
	_, err := c.Time(context.Background())
	require.ErrorIs(t, err, ErrNoConfiguration)
	require.NoError(t, c.Configure(testConfig()))
	tok, err := c.Time(context.Background())
	require.NoError(t, err)
	require.Equal(t, "15000000000000000", tok)
}

func TestDefaultInstance(t *testing.T) {
	c := New()
	SetDefault(c)
	require.Same(t, c, Default())
	SetDefault(nil)
	d := Default()
	require.NotNil(t, d)
	require.NotSame(t, c, d)
	require.Same(t, d, Default())
	SetDefault(nil)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "subscribed", StateSubscribed.String())
	require.Panics(t, func() { _ = State(42).String() })
}

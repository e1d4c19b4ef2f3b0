package fanout

import (
	"errors"
	"testing"

	"github.com/centrifugal/subclient/internal/entity"

	"github.com/stretchr/testify/require"
)

type recordingDelegate struct {
	NopDelegate
	connections []ConnectionEvent
	messages    []MessageEvent
}

func (d *recordingDelegate) OnConnection(e ConnectionEvent) { d.connections = append(d.connections, e) }
func (d *recordingDelegate) OnMessage(e MessageEvent)       { d.messages = append(d.messages, e) }

type messageOnly struct {
	got int
}

func (d *messageOnly) OnMessage(MessageEvent) { d.got++ }

func TestHubOrderCompletionDelegateObservers(t *testing.T) {
	h := NewHub()
	var order []string
	h.SetDelegate(connectionFunc(func(ConnectionEvent) { order = append(order, "delegate") }))
	_, err := h.Observe(CategoryAll, Filter{}, func(Event) { order = append(order, "observer1") })
	require.NoError(t, err)
	_, err = h.Observe(CategoryConnection, Filter{}, func(Event) { order = append(order, "observer2") })
	require.NoError(t, err)
	seq := h.SetCompletion(CallConnect, func(Event) { order = append(order, "completion") })

	h.Complete(CallConnect, seq, ConnectionEvent{Status: StatusConnected})
	require.Equal(t, []string{"completion", "delegate", "observer1", "observer2"}, order)
}

type connectionFunc func(ConnectionEvent)

func (f connectionFunc) OnConnection(e ConnectionEvent) { f(e) }

func TestHubCompletionFiresOnce(t *testing.T) {
	h := NewHub()
	calls := 0
	seq := h.SetCompletion(CallSubscribe, func(Event) { calls++ })
	require.True(t, h.HasCompletion(CallSubscribe))
	h.Complete(CallSubscribe, seq, SubscriptionEvent{})
	h.Complete(CallSubscribe, seq, SubscriptionEvent{})
	require.Equal(t, 1, calls)
	require.False(t, h.HasCompletion(CallSubscribe))
}

func TestHubCompletionOverwritten(t *testing.T) {
	h := NewHub()
	var first, second []Event
	observed := 0
	_, err := h.Observe(CategoryUnsubscription, Filter{}, func(Event) { observed++ })
	require.NoError(t, err)
	seqA := h.SetCompletion(CallUnsubscribe, func(ev Event) { first = append(first, ev) })
	seqB := h.SetCompletion(CallUnsubscribe, func(ev Event) { second = append(second, ev) })
	require.NotEqual(t, seqA, seqB)

	// Result of the overwritten call finishes first.
	resA := UnsubscriptionEvent{Unsubscribed: []entity.Entity{entity.Channel("a")}}
	h.Complete(CallUnsubscribe, seqA, resA)
	require.Empty(t, first)
	require.Empty(t, second)
	require.True(t, h.HasCompletion(CallUnsubscribe))

	resB := UnsubscriptionEvent{Unsubscribed: []entity.Entity{entity.Channel("b")}}
	h.Complete(CallUnsubscribe, seqB, resB)
	require.Empty(t, first)
	require.Equal(t, []Event{resB}, second)
	require.Equal(t, 2, observed)
}

func TestHubCompletionResetWithoutCallback(t *testing.T) {
	h := NewHub()
	calls := 0
	h.SetCompletion(CallSubscribe, func(Event) { calls++ })
	seq := h.SetCompletion(CallSubscribe, nil)
	require.False(t, h.HasCompletion(CallSubscribe))
	h.Complete(CallSubscribe, seq, SubscriptionEvent{})
	require.Equal(t, 0, calls)
}

func TestHubClearCompletion(t *testing.T) {
	h := NewHub()
	calls := 0
	seq := h.SetCompletion(CallSubscribe, func(Event) { calls++ })
	h.ClearCompletion(CallSubscribe)
	require.False(t, h.HasCompletion(CallSubscribe))
	require.NotEqual(t, seq, h.Seq(CallSubscribe))
	h.Complete(CallSubscribe, seq, SubscriptionEvent{})
	h.Complete(CallSubscribe, h.Seq(CallSubscribe), SubscriptionEvent{})
	require.Equal(t, 0, calls)
}

func TestHubCompletionKindsIndependent(t *testing.T) {
	h := NewHub()
	var sub, unsub int
	h.SetCompletion(CallSubscribe, func(Event) { sub++ })
	seq := h.SetCompletion(CallUnsubscribe, func(Event) { unsub++ })
	h.Complete(CallUnsubscribe, seq, UnsubscriptionEvent{})
	require.Equal(t, 0, sub)
	require.Equal(t, 1, unsub)
}

func TestHubDelegateCapabilities(t *testing.T) {
	h := NewHub()
	d := &messageOnly{}
	h.SetDelegate(d)
	h.Emit(ConnectionEvent{Status: StatusConnected})
	h.Emit(MessageEvent{Entity: entity.Channel("a")})
	require.Equal(t, 1, d.got)

	full := &recordingDelegate{}
	h.SetDelegate(full)
	h.Emit(ConnectionEvent{Status: StatusDisconnected})
	h.Emit(PresenceEvent{Entity: entity.Channel("a")})
	require.Len(t, full.connections, 1)
	require.Equal(t, StatusDisconnected, full.connections[0].Status)
	require.Equal(t, 1, d.got)

	h.SetDelegate(nil)
	require.Nil(t, h.Delegate())
	h.Emit(MessageEvent{Entity: entity.Channel("a")})
	require.Empty(t, full.messages)
}

func TestHubObserverCategoryMask(t *testing.T) {
	h := NewHub()
	var got []Category
	_, err := h.Observe(CategoryMessage|CategoryPresence, Filter{}, func(e Event) { got = append(got, e.Category()) })
	require.NoError(t, err)
	h.Emit(ConnectionEvent{})
	h.Emit(MessageEvent{Entity: entity.Channel("a")})
	h.Emit(PresenceEvent{Entity: entity.Channel("a")})
	h.Emit(ErrorEvent{Err: errors.New("boom")})
	require.Equal(t, []Category{CategoryMessage, CategoryPresence}, got)
}

func TestHubObserverDuplicatesDeliverTwice(t *testing.T) {
	h := NewHub()
	calls := 0
	fn := func(Event) { calls++ }
	_, err := h.Observe(CategoryAll, Filter{}, fn)
	require.NoError(t, err)
	_, err = h.Observe(CategoryAll, Filter{}, fn)
	require.NoError(t, err)
	h.Emit(ConnectionEvent{})
	require.Equal(t, 2, calls)
}

func TestHubUnobserve(t *testing.T) {
	h := NewHub()
	calls := 0
	handle, err := h.Observe(CategoryAll, Filter{}, func(Event) { calls++ })
	require.NoError(t, err)
	require.Equal(t, 1, h.NumObservers())
	require.True(t, h.Unobserve(handle))
	require.False(t, h.Unobserve(handle))
	h.Emit(ConnectionEvent{})
	require.Equal(t, 0, calls)
	require.Equal(t, 0, h.NumObservers())
}

func TestHubUnobserveDuringDispatch(t *testing.T) {
	h := NewHub()
	var handle Handle
	calls := 0
	var err error
	handle, err = h.Observe(CategoryAll, Filter{}, func(Event) { h.Unobserve(handle) })
	require.NoError(t, err)
	_, err = h.Observe(CategoryAll, Filter{}, func(Event) { calls++ })
	require.NoError(t, err)
	h.Emit(ConnectionEvent{})
	h.Emit(ConnectionEvent{})
	require.Equal(t, 2, calls)
	require.Equal(t, 1, h.NumObservers())
}

func TestHubEntityFilter(t *testing.T) {
	h := NewHub()
	var got []string
	_, err := h.Observe(CategoryAll, Filter{Entity: "news.*"}, func(e Event) {
		got = append(got, e.Category().String())
	})
	require.NoError(t, err)
	h.Emit(MessageEvent{Entity: entity.Channel("news.sport")})
	h.Emit(MessageEvent{Entity: entity.Channel("chat")})
	h.Emit(ConnectionEvent{})
	h.Emit(SubscriptionEvent{Subscribed: []entity.Entity{entity.Channel("chat"), entity.Channel("news.a")}})
	require.Equal(t, []string{"message", "connection", "subscription"}, got)
}

func TestHubInvalidFilter(t *testing.T) {
	h := NewHub()
	_, err := h.Observe(CategoryAll, Filter{Entity: "[a"}, func(Event) {})
	require.Error(t, err)
	_, err = h.Observe(CategoryAll, Filter{}, nil)
	require.Error(t, err)
}

func TestHubPanicIsolation(t *testing.T) {
	h := NewHub()
	h.SetDelegate(connectionFunc(func(ConnectionEvent) { panic("delegate") }))
	seq := h.SetCompletion(CallConnect, func(Event) { panic("completion") })
	_, err := h.Observe(CategoryAll, Filter{}, func(Event) { panic("observer") })
	require.NoError(t, err)
	delivered := false
	_, err = h.Observe(CategoryAll, Filter{}, func(Event) { delivered = true })
	require.NoError(t, err)
	require.NotPanics(t, func() {
		h.Complete(CallConnect, seq, ConnectionEvent{Status: StatusConnected})
	})
	require.True(t, delivered)
}

func TestCategoryString(t *testing.T) {
	require.Equal(t, "message", CategoryMessage.String())
	require.Equal(t, "message|presence", (CategoryMessage | CategoryPresence).String())
	require.Equal(t, "category:0", Category(0).String())
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("message, presence")
	require.NoError(t, err)
	require.Equal(t, CategoryMessage|CategoryPresence, c)
	c, err = ParseCategory("all")
	require.NoError(t, err)
	require.Equal(t, CategoryAll, c)
	c, err = ParseCategory("status")
	require.NoError(t, err)
	require.Equal(t, CategoryStatus, c)
	_, err = ParseCategory("unknown")
	require.Error(t, err)
}

func TestEventEntities(t *testing.T) {
	a, b := entity.Channel("a"), entity.Channel("b")
	ev := SubscriptionEvent{Subscribed: []entity.Entity{a}, Failed: []entity.Entity{b}}
	require.Equal(t, []entity.Entity{a, b}, ev.Entities())
	require.Len(t, ev.Subscribed, 1)
	require.Empty(t, ConnectionEvent{}.Entities())
	require.Equal(t, "catch_up_failed", StatusCatchUpFailed.String())
}

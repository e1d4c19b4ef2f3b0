package fanout

import (
	"fmt"
	"sync"

	"github.com/centrifugal/subclient/internal/metrics"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallKind identifies an operation whose result is reported to a
// per-call completion.
type CallKind uint8

const (
	CallConnect CallKind = iota
	CallSubscribe
	CallUnsubscribe
	CallIdentity
	numCallKinds
)

func (k CallKind) String() string {
	switch k {
	case CallConnect:
		return "connect"
	case CallSubscribe:
		return "subscribe"
	case CallUnsubscribe:
		return "unsubscribe"
	case CallIdentity:
		return "identity"
	default:
		return fmt.Sprintf("call:%d", uint8(k))
	}
}

// Completion receives the result of a single call.
type Completion func(Event)

// Observer receives every event matching its registration.
type Observer func(Event)

// Filter narrows an observer registration to events related to entities
// whose full name matches the Entity glob pattern. Events not related to
// any entity pass the filter.
type Filter struct {
	Entity string
}

// Handle identifies an observer registration.
type Handle uint64

type observer struct {
	handle     Handle
	categories Category
	pattern    glob.Glob
	fn         Observer
}

func (o *observer) matches(ev Event) bool {
	if o.categories&ev.Category() == 0 {
		return false
	}
	if o.pattern == nil {
		return true
	}
	entities := ev.Entities()
	if len(entities) == 0 {
		return true
	}
	for _, e := range entities {
		if o.pattern.Match(e.FullName()) {
			return true
		}
	}
	return false
}

// Hub dispatches events to the completion of the call that caused them,
// then to the delegate, then to observers in registration order.
// Listener panics are recovered so that one listener can not break
// delivery to the others.
type Hub struct {
	log zerolog.Logger

	mu          sync.RWMutex
	completions [numCallKinds]Completion
	// seqs holds sequence of the latest call of each kind.
	seqs        [numCallKinds]uint64
	delegate    any
	observers   []*observer
	nextHandle  Handle
}

// NewHub creates Hub.
func NewHub() *Hub {
	return &Hub{
		log: log.With().Str("component", "fanout").Logger(),
	}
}

// SetCompletion registers a new call of kind k with completion c, which
// may be nil, and returns the call sequence. The completion of a previous
// call of the same kind is dropped: only the result carrying the returned
// sequence reaches c.
func (h *Hub) SetCompletion(k CallKind, c Completion) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seqs[k]++
	h.completions[k] = c
	return h.seqs[k]
}

// Seq returns sequence of the latest call of kind k.
func (h *Hub) Seq(k CallKind) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[k]
}

// ClearCompletion drops completion of kind k. Results of calls made
// before reach delegate and observers only.
func (h *Hub) ClearCompletion(k CallKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seqs[k]++
	h.completions[k] = nil
}

// HasCompletion reports whether a completion for k is waiting.
func (h *Hub) HasCompletion(k CallKind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.completions[k] != nil
}

func (h *Hub) takeCompletion(k CallKind, seq uint64) Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seqs[k] != seq {
		return nil
	}
	c := h.completions[k]
	h.completions[k] = nil
	return c
}

// SetDelegate replaces delegate, nil removes it.
func (h *Hub) SetDelegate(d any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delegate = d
}

// Delegate returns current delegate.
func (h *Hub) Delegate() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.delegate
}

// Observe registers fn for events of given categories. Registering the
// same function twice results in two deliveries.
func (h *Hub) Observe(categories Category, filter Filter, fn Observer) (Handle, error) {
	if fn == nil {
		return 0, fmt.Errorf("nil observer")
	}
	o := &observer{categories: categories, fn: fn}
	if filter.Entity != "" {
		g, err := glob.Compile(filter.Entity)
		if err != nil {
			return 0, fmt.Errorf("invalid entity filter %q: %w", filter.Entity, err)
		}
		o.pattern = g
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandle++
	o.handle = h.nextHandle
	observers := make([]*observer, len(h.observers), len(h.observers)+1)
	copy(observers, h.observers)
	h.observers = append(observers, o)
	return o.handle, nil
}

// Unobserve removes registration, returns false if handle is unknown.
func (h *Hub) Unobserve(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, o := range h.observers {
		if o.handle == handle {
			observers := make([]*observer, 0, len(h.observers)-1)
			observers = append(observers, h.observers[:i]...)
			h.observers = append(observers, h.observers[i+1:]...)
			return true
		}
	}
	return false
}

// NumObservers returns number of registered observers.
func (h *Hub) NumObservers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Emit delivers ev to delegate and observers.
func (h *Hub) Emit(ev Event) {
	h.dispatch(nil, ev)
}

// Complete delivers result of call seq of kind k to its completion, if the
// call is still the latest of its kind, and then to delegate and observers.
func (h *Hub) Complete(k CallKind, seq uint64, ev Event) {
	h.dispatch(h.takeCompletion(k, seq), ev)
}

func (h *Hub) dispatch(c Completion, ev Event) {
	metrics.IncEvent(ev.Category().String())

	h.mu.RLock()
	delegate := h.delegate
	observers := h.observers
	h.mu.RUnlock()

	if c != nil {
		h.safeCall("completion", ev, func() { c(ev) })
	}
	if delegate != nil {
		h.safeCall("delegate", ev, func() { deliverDelegate(delegate, ev) })
	}
	for _, o := range observers {
		if !o.matches(ev) {
			continue
		}
		h.safeCall("observer", ev, func() { o.fn(ev) })
	}
}

func (h *Hub) safeCall(listener string, ev Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncListenerPanic(listener)
			h.log.Error().Str("listener", listener).Str("category", ev.Category().String()).
				Interface("panic", r).Msg("listener panic recovered")
		}
	}()
	fn()
}

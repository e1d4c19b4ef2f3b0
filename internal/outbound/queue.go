// Package outbound provides FIFO queue of publish requests drained by a
// single worker.
package outbound

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/centrifugal/subclient/internal/metrics"
	"github.com/centrifugal/subclient/internal/transport"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrQueueClosed returned by Enqueue after Close.
	ErrQueueClosed = errors.New("outbound queue closed")
	// ErrCanceled is the result of messages removed by Clear or Close
	// before they were sent.
	ErrCanceled = errors.New("publish canceled")
)

// Publisher sends a single message.
type Publisher interface {
	Publish(ctx context.Context, req *transport.PublishRequest) (*transport.PublishResponse, error)
}

// Result is a terminal status of a message.
type Result struct {
	Token string
	Err   error
}

// Handle tracks a queued message.
type Handle struct {
	id      string
	request transport.PublishRequest

	once   sync.Once
	done   chan struct{}
	result Result
}

func newHandle(req transport.PublishRequest) *Handle {
	return &Handle{
		id:      uuid.NewString(),
		request: req,
		done:    make(chan struct{}),
	}
}

// ID is a unique message identifier.
func (h *Handle) ID() string { return h.id }

// Channel message is published to.
func (h *Handle) Channel() string { return h.request.Channel }

// Done is closed once the message reached terminal status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns terminal status. It must be called after Done is closed,
// before that zero Result is returned.
func (h *Handle) Result() Result {
	select {
	case <-h.done:
		return h.result
	default:
		return Result{}
	}
}

// Wait blocks until the message reached terminal status or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) finish(r Result) bool {
	finished := false
	h.once.Do(func() {
		h.result = r
		close(h.done)
		finished = true
	})
	return finished
}

// Config of Queue.
type Config struct {
	// RateLimit limits publish requests per second, zero means no limit.
	RateLimit float64
	// Burst of rate limiter, defaults to 1.
	Burst int
	// OnComplete called for every message in submission order once it
	// reached terminal status.
	OnComplete func(h *Handle, r Result)
}

// Queue is an unbounded FIFO of publish requests. The queue is goroutine
// safe. At most one request is in flight at a time.
type Queue struct {
	publisher  Publisher
	limiter    *rate.Limiter
	onComplete func(h *Handle, r Result)
	log        zerolog.Logger

	mu             sync.Mutex
	cond           *sync.Cond
	items          *deque.Deque[*Handle]
	inflight       *Handle
	cancelInflight context.CancelFunc
	closed         bool
	started        bool
	// completions wait for delivery in submission order, a single caller
	// at a time delivers them.
	completions []completion
	delivering  bool
	wg          sync.WaitGroup
}

type completion struct {
	handle *Handle
	result Result
}

// New creates Queue. Call Start to run the drain worker.
func New(publisher Publisher, cfg Config) *Queue {
	q := &Queue{
		publisher:  publisher,
		items:      deque.New[*Handle](),
		onComplete: cfg.OnComplete,
		log:        log.With().Str("component", "outbound").Logger(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start runs drain worker. Subsequent calls are no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run()
	}()
}

// Enqueue adds request to the back of the queue and returns immediately.
func (q *Queue) Enqueue(req transport.PublishRequest) (*Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	h := newHandle(req)
	q.items.PushBack(h)
	metrics.OutboundQueueLen.Set(float64(q.items.Len()))
	q.cond.Signal()
	return h, nil
}

// Len returns number of messages not yet completed, including the one
// in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	if q.inflight != nil {
		n++
	}
	return n
}

// Pending returns handles of messages not yet completed in submission order.
func (q *Queue) Pending() []*Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	handles := make([]*Handle, 0, q.items.Len()+1)
	if q.inflight != nil {
		handles = append(handles, q.inflight)
	}
	for i := 0; i < q.items.Len(); i++ {
		handles = append(handles, q.items.At(i))
	}
	return handles
}

// Clear cancels the in-flight request and completes it together with all
// waiting messages with ErrCanceled. Returns number of canceled messages.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := q.cancelAllLocked()
	q.mu.Unlock()
	q.deliver()
	return n
}

// Close clears the queue and stops drain worker. Enqueue fails after Close.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancelAllLocked()
	q.cond.Broadcast()
	q.mu.Unlock()
	q.deliver()
	q.wg.Wait()
}

// Must be called with mu held.
func (q *Queue) cancelAllLocked() int {
	n := 0
	if q.inflight != nil {
		q.completions = append(q.completions, completion{q.inflight, Result{Err: ErrCanceled}})
		q.inflight = nil
		q.cancelInflight()
		n++
	}
	for q.items.Len() > 0 {
		q.completions = append(q.completions, completion{q.items.PopFront(), Result{Err: ErrCanceled}})
		n++
	}
	metrics.OutboundQueueLen.Set(0)
	return n
}

// wait blocks until a message is available or queue is closed.
func (q *Queue) wait() (*Handle, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, nil, false
	}
	h := q.items.PopFront()
	metrics.OutboundQueueLen.Set(float64(q.items.Len()))
	ctx, cancel := context.WithCancel(context.Background())
	q.inflight = h
	q.cancelInflight = cancel
	return h, ctx, true
}

func (q *Queue) run() {
	for {
		h, ctx, ok := q.wait()
		if !ok {
			return
		}
		r := q.send(ctx, h)

		q.mu.Lock()
		// Otherwise already canceled by Clear or Close.
		if q.inflight == h {
			q.inflight = nil
			q.cancelInflight()
			q.completions = append(q.completions, completion{h, r})
		}
		q.mu.Unlock()
		q.deliver()
	}
}

func (q *Queue) send(ctx context.Context, h *Handle) Result {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return Result{Err: ErrCanceled}
		}
	}
	started := time.Now()
	resp, err := q.publisher.Publish(ctx, &h.request)
	if err != nil {
		if ctx.Err() != nil {
			metrics.ObservePublish(started, metrics.ResultCancel)
			return Result{Err: ErrCanceled}
		}
		metrics.ObservePublish(started, metrics.ResultError)
		q.log.Debug().Err(err).Str("id", h.id).Str("channel", h.request.Channel).Msg("publish failed")
		return Result{Err: err}
	}
	metrics.ObservePublish(started, metrics.ResultOK)
	return Result{Token: resp.Token}
}

// deliver fires queued completions. Completions queued by a callback are
// delivered by the outer call before it returns.
func (q *Queue) deliver() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.completions) > 0 {
		c := q.completions[0]
		q.completions[0] = completion{}
		q.completions = q.completions[1:]
		q.mu.Unlock()
		if c.handle.finish(c.result) {
			q.callComplete(c)
		}
		q.mu.Lock()
	}
	q.completions = nil
	q.delivering = false
	q.mu.Unlock()
}

func (q *Queue) callComplete(c completion) {
	if q.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("id", c.handle.id).Msg("publish completion panic recovered")
		}
	}()
	q.onComplete(c.handle, c.result)
}

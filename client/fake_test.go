package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type pollReply struct {
	resp *PollResponse
	err  error
}

type pollCall struct {
	ctx   context.Context
	req   *PollRequest
	reply chan pollReply
}

func (p *pollCall) respond(token string, events ...PollEvent) {
	p.reply <- pollReply{resp: &PollResponse{Cursor: Cursor{Token: token}, Events: events}}
}

func (p *pollCall) fail(err error) {
	p.reply <- pollReply{err: err}
}

type leaveCall struct {
	clientID string
	channels []string
	groups   []string
}

// fakeTransport hands every poll to the test which decides its outcome.
type fakeTransport struct {
	polls chan *pollCall

	mu         sync.Mutex
	timeErr    error
	timeCalls  int
	leaves     []leaveCall
	leaveErr   error
	leaveCh    chan leaveCall
	leaveBlock map[string]chan struct{}
	published  []PublishRequest
	publishErr map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		polls:   make(chan *pollCall),
		leaveCh: make(chan leaveCall, 16),
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, req *PollRequest) (*PollResponse, error) {
	call := &pollCall{ctx: ctx, req: req, reply: make(chan pollReply, 1)}
	select {
	case f.polls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Publish(_ context.Context, req *PublishRequest) (*PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, *req)
	if err := f.publishErr[req.Channel]; err != nil {
		return nil, err
	}
	return &PublishResponse{Token: "pub-" + req.Channel}, nil
}

func (f *fakeTransport) Leave(_ context.Context, clientID string, channels, groups []string) error {
	f.mu.Lock()
	call := leaveCall{clientID: clientID, channels: channels, groups: groups}
	f.leaves = append(f.leaves, call)
	err := f.leaveErr
	var block []chan struct{}
	for _, ch := range channels {
		if b, ok := f.leaveBlock[ch]; ok {
			block = append(block, b)
		}
	}
	f.mu.Unlock()
	f.leaveCh <- call
	for _, b := range block {
		<-b
	}
	return err
}

// blockLeave holds leave requests naming channel until returned func is called.
func (f *fakeTransport) blockLeave(channel string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaveBlock == nil {
		f.leaveBlock = make(map[string]chan struct{})
	}
	b := make(chan struct{})
	f.leaveBlock[channel] = b
	return func() { close(b) }
}

func (f *fakeTransport) Time(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeCalls++
	if f.timeErr != nil {
		return "", f.timeErr
	}
	return "15000000000000000", nil
}

// nextPoll returns next poll which was not canceled by a restart.
func (f *fakeTransport) nextPoll(t *testing.T) *pollCall {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case p := <-f.polls:
			if p.ctx.Err() != nil {
				continue
			}
			return p
		case <-deadline:
			t.Fatal("timeout waiting for poll")
			return nil
		}
	}
}

func (f *fakeTransport) noPoll(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-f.polls:
		t.Fatalf("unexpected poll over %v", p.req.Channels)
	case <-time.After(d):
	}
}

func (f *fakeTransport) nextLeave(t *testing.T) leaveCall {
	t.Helper()
	select {
	case l := <-f.leaveCh:
		return l
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for leave")
		return leaveCall{}
	}
}

// eventLog records events delivered to an observer.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 1024)}
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

// waitFor consumes events until one matches.
func (l *eventLog) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-l.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
			return nil
		}
	}
}

func (l *eventLog) waitStatus(t *testing.T, status ConnectionStatus) ConnectionEvent {
	t.Helper()
	return l.waitFor(t, func(ev Event) bool {
		e, ok := ev.(ConnectionEvent)
		return ok && e.Status == status
	}).(ConnectionEvent)
}

func (l *eventLog) localPresence() []PresenceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []PresenceEvent
	for _, ev := range l.events {
		if p, ok := ev.(PresenceEvent); ok && p.Local {
			out = append(out, p)
		}
	}
	return out
}

func (l *eventLog) count(match func(Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	for {
		select {
		case <-l.ch:
		default:
			return
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubscribeKey = "sub-key"
	cfg.PublishKey = "pub-key"
	cfg.ClientID = "userA"
	cfg.ReconnectMinDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 5 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, modify ...func(*Config)) (*Client, *fakeTransport, *eventLog) {
	t.Helper()
	ft := newFakeTransport()
	c := New(WithTransport(ft))
	cfg := testConfig()
	for _, m := range modify {
		m(&cfg)
	}
	require.NoError(t, c.Configure(cfg))
	events := newEventLog()
	_, err := c.Observe(CategoryAll, Filter{}, events.observe)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, ft, events
}

// connectIdle connects with empty membership using time handshake.
func connectIdle(t *testing.T, c *Client, events *eventLog) {
	t.Helper()
	require.NoError(t, c.Connect(nil))
	events.waitStatus(t, StatusConnected)
	require.True(t, c.IsConnected())
}

func isPresence(ev Event) bool {
	_, ok := ev.(PresenceEvent)
	return ok
}

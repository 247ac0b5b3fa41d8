package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/internal/auth"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/transport"
)

const (
	testUnit = time.Second
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

var errDialRefused = errors.New("dial refused")

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	fn    func()
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.done
	t.done = true
	return pending
}

// Advance moves time forward and runs every timer that came due, earliest first.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	kept := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	c.timers = kept
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// pipeDialer hands the client one end of an in-memory pipe per successful dial.
type pipeDialer struct {
	mu       sync.Mutex
	attempts int
	refuse   bool
	peers    chan *peer
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{peers: make(chan *peer, 16)}
}

func (d *pipeDialer) Dial(ctx context.Context, id auth.Identity) (transport.Conn, error) {
	d.mu.Lock()
	d.attempts++
	refuse := d.refuse
	d.mu.Unlock()
	if refuse {
		return nil, errDialRefused
	}
	client, server := transport.Pipe()
	d.peers <- newPeer(server)
	return client, nil
}

func (d *pipeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *pipeDialer) Refuse(refuse bool) {
	d.mu.Lock()
	d.refuse = refuse
	d.mu.Unlock()
}

// peer is the server side of a pipe.
type peer struct {
	conn   *transport.MemoryConn
	events chan models.Event
}

func newPeer(conn *transport.MemoryConn) *peer {
	p := &peer{conn: conn, events: make(chan models.Event, 64)}
	go func() {
		defer close(p.events)
		for {
			event, err := conn.ReadEvent()
			if err != nil {
				return
			}
			p.events <- event
		}
	}()
	return p
}

func (p *peer) send(t *testing.T, eventType string, payload any) {
	t.Helper()
	event, err := models.NewEvent(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, p.conn.WriteEvent(event))
}

func (p *peer) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case event, ok := <-p.events:
		require.True(t, ok, "connection closed")
		return event
	case <-time.After(waitFor):
		t.Fatal("no event from client")
	}
	return models.Event{}
}

// nextOf skips frames until one of eventType arrives.
func (p *peer) nextOf(t *testing.T, eventType string) models.Event {
	t.Helper()
	for {
		if event := p.next(t); event.Type == eventType {
			return event
		}
	}
}

func (p *peer) quiet(t *testing.T) {
	t.Helper()
	select {
	case event, ok := <-p.events:
		if ok {
			t.Fatalf("unexpected %s from client", event.Type)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	svc    *Service
	clock  *manualClock
	dialer *pipeDialer
	api    *mocks.ChatAPIMock
	store  *auth.Store
}

func newHarness(t *testing.T, opts ...func(*Config, *Deps)) *harness {
	t.Helper()
	h := &harness{
		clock:  newManualClock(),
		dialer: newPipeDialer(),
		api:    new(mocks.ChatAPIMock),
		store:  auth.NewStore(),
	}
	cfg := Config{TimeUnit: testUnit, Clock: h.clock}
	deps := Deps{Auth: h.store, Dialer: h.dialer, API: h.api}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.svc = New(cfg, deps)
	t.Cleanup(h.svc.Close)
	return h
}

// online logs userID in and returns the server side of the resulting connection.
func (h *harness) online(t *testing.T, userID string) *peer {
	t.Helper()
	require.NoError(t, h.store.Login(auth.Identity{UserID: userID, Token: "tok-" + userID}))
	return h.awaitConnection(t)
}

func (h *harness) awaitConnection(t *testing.T) *peer {
	t.Helper()
	var p *peer
	select {
	case p = <-h.dialer.peers:
	case <-time.After(waitFor):
		t.Fatal("client never dialed")
	}
	require.Eventually(t, h.svc.Online, waitFor, tick)
	return p
}

// settle waits for work already queued on the loop.
func (h *harness) settle() {
	h.svc.disp.do(func() {})
}

func (h *harness) advanceUnits(n int) {
	h.clock.Advance(time.Duration(n) * testUnit)
	h.settle()
}

func message(id, room, sender, body string, at time.Time) models.Message {
	return models.Message{ID: id, RoomID: room, SenderID: sender, Body: body, Kind: models.KindText, CreatedAt: at}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

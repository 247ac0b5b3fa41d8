// Package realtime keeps a chat client's shared realtime state: the connection,
// room membership, presence, typing, per-room message timelines and the
// conversation list.
//
// All state lives on one dispatch goroutine. Public methods post intents to it
// and subscribers are notified, in order, from a separate goroutine, so a
// subscriber may call back into the Service.
package realtime

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"chat-sync/internal/api"
	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/transport"
)

const (
	defaultTimeUnit             = time.Second
	defaultMaxReconnectAttempts = 5
	// reconcile window in time units
	defaultReconcileUnits = 30
	// typing entries expire after this many time units without renewal
	typingUnits = 2
)

type Config struct {
	// TimeUnit scales every delay: reconnect spacing is one unit, typing expiry two.
	TimeUnit             time.Duration
	MaxReconnectAttempts int
	// ReconcileWindow bounds how far apart an optimistic message and its server copy
	// may be timestamped and still be matched by content.
	ReconcileWindow time.Duration
	Clock           Clock
}

func (c Config) withDefaults() Config {
	if c.TimeUnit <= 0 {
		c.TimeUnit = defaultTimeUnit
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.ReconcileWindow <= 0 {
		c.ReconcileWindow = defaultReconcileUnits * c.TimeUnit
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	return c
}

// LifecycleSink receives connection and delivery lifecycle events.
type LifecycleSink interface {
	Emit(ctx context.Context, userID string, payload telemetry.LifecyclePayload)
}

// Deps are the collaborators a Service talks to.
type Deps struct {
	Auth      auth.Source
	Dialer    transport.Dialer
	API       api.ChatAPI
	Lifecycle LifecycleSink
}

// MessagesChange is delivered when a room's timeline changes.
type MessagesChange struct {
	RoomID   string
	Messages []models.Message
}

// TypingChange is delivered when the set of users typing in a room changes.
type TypingChange struct {
	RoomID  string
	UserIDs []string
}

// Service is the single owner of a session's realtime chat state.
type Service struct {
	cfg       Config
	clock     Clock
	disp      *dispatcher
	auth      auth.Source
	dialer    transport.Dialer
	api       api.ChatAPI
	lifecycle LifecycleSink
	unsubAuth func()

	// loop-owned state
	identity   *auth.Identity
	closed     bool
	state      ConnState
	conn       transport.Conn
	gen        uint64
	cancelDial context.CancelFunc
	policy     backoff.BackOff
	retry      *timer

	online       map[string]struct{}
	localTyping  map[string]*timer
	remoteTyping map[string]map[string]*timer

	active    string
	timelines map[string]*timeline
	histErr   map[string]error
	recent    *recentIDs

	convs       []*models.ConversationSummary
	convsLoaded bool
	convsErr    error

	stateSubs    *registry[ConnState]
	presenceSubs *registry[[]string]
	typingSubs   *registry[TypingChange]
	messageSubs  *registry[MessagesChange]
	convSubs     *registry[[]models.ConversationSummary]
}

// New builds a Service and starts following deps.Auth: login connects, logout disconnects.
func New(cfg Config, deps Deps) *Service {
	cfg = cfg.withDefaults()
	disp := newDispatcher()
	s := &Service{
		cfg:          cfg,
		clock:        cfg.Clock,
		disp:         disp,
		auth:         deps.Auth,
		dialer:       deps.Dialer,
		api:          deps.API,
		lifecycle:    deps.Lifecycle,
		policy:       backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.TimeUnit), uint64(cfg.MaxReconnectAttempts)),
		online:       make(map[string]struct{}),
		localTyping:  make(map[string]*timer),
		remoteTyping: make(map[string]map[string]*timer),
		timelines:    make(map[string]*timeline),
		histErr:      make(map[string]error),
		recent:       newRecentIDs(recentIDCapacity),
		stateSubs:    newRegistry[ConnState](disp),
		presenceSubs: newRegistry[[]string](disp),
		typingSubs:   newRegistry[TypingChange](disp),
		messageSubs:  newRegistry[MessagesChange](disp),
		convSubs:     newRegistry[[]models.ConversationSummary](disp),
	}

	if s.auth != nil {
		s.unsubAuth = s.auth.Subscribe(func(id *auth.Identity) {
			if id == nil {
				s.disp.post(s.logout)
				return
			}
			next := *id
			s.disp.post(func() { s.login(next) })
		})
		if id, ok := s.auth.Current(); ok {
			s.disp.post(func() { s.login(id) })
		}
	}
	return s
}

// Close flushes owed typing signals, releases the connection and stops the service.
func (s *Service) Close() {
	if s.unsubAuth != nil {
		s.unsubAuth()
	}
	s.disp.stop(func() {
		if s.closed {
			return
		}
		s.closed = true
		s.disconnect()
	})
}

func (s *Service) login(id auth.Identity) {
	if s.closed {
		return
	}
	if s.identity != nil && s.identity.UserID != id.UserID {
		s.logout()
	}
	s.identity = &id
	if err := s.connect(); err != nil {
		log.Printf("realtime: connect on login failed: %v", err)
	}
}

func (s *Service) logout() {
	if s.identity == nil {
		return
	}
	s.disconnect()
	s.identity = nil
	s.active = ""
	s.timelines = make(map[string]*timeline)
	s.histErr = make(map[string]error)
	s.recent = newRecentIDs(recentIDCapacity)
	s.convs = nil
	s.convsLoaded = false
	s.convsErr = nil
	s.emitConversations()
}

func (s *Service) self() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.UserID
}

func (s *Service) unit(n int) time.Duration {
	return time.Duration(n) * s.cfg.TimeUnit
}

func (s *Service) recordLifecycle(payload telemetry.LifecyclePayload) {
	if s.lifecycle == nil {
		return
	}
	userID := s.self()
	go s.lifecycle.Emit(context.Background(), userID, payload)
}

// SetActiveRoom marks roomID as the room being viewed. An empty id clears it.
// Inbound messages reach a room's timeline only while it is active, and do not
// count as unread there.
func (s *Service) SetActiveRoom(roomID string) {
	s.disp.do(func() { s.active = roomID })
}

// ActiveRoom returns the room being viewed.
func (s *Service) ActiveRoom() string {
	var room string
	s.disp.do(func() { room = s.active })
	return room
}

// CreateOrGetRoom returns the private room with targetUserID, creating it server side when needed.
func (s *Service) CreateOrGetRoom(ctx context.Context, targetUserID string) (models.Room, error) {
	if err := s.requireSession(); err != nil {
		return models.Room{}, err
	}
	return s.api.CreateOrGetRoom(ctx, targetUserID)
}

func (s *Service) requireSession() error {
	var err error
	if !s.disp.do(func() {
		if s.closed {
			err = ErrClosed
		} else if s.identity == nil {
			err = ErrUnauthenticated
		}
	}) {
		return ErrClosed
	}
	return err
}

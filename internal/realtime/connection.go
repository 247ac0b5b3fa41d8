package realtime

import (
	"context"
	"errors"
	"log"

	"github.com/cenkalti/backoff/v4"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/transport"
)

// ConnState is the lifecycle state of the realtime connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Connect opens the realtime connection for the logged-in user. It is a no-op while
// connecting or connected. After automatic retries give up, calling Connect again
// starts a fresh attempt budget.
func (s *Service) Connect() error {
	var err error
	if !s.disp.do(func() { err = s.connect() }) {
		return ErrClosed
	}
	return err
}

// Disconnect releases the connection and clears presence, typing and pending retries.
// The session stays logged in.
func (s *Service) Disconnect() {
	s.disp.do(s.disconnect)
}

// State returns the connection state.
func (s *Service) State() ConnState {
	state := StateDisconnected
	s.disp.do(func() { state = s.state })
	return state
}

// Online reports whether the connection is established.
func (s *Service) Online() bool {
	return s.State() == StateConnected
}

// OnStateChange subscribes to connection state transitions.
func (s *Service) OnStateChange(fn func(ConnState)) func() {
	return s.stateSubs.subscribe(fn)
}

func (s *Service) connect() error {
	if s.closed {
		return ErrClosed
	}
	if s.identity == nil {
		return ErrUnauthenticated
	}
	if s.state != StateDisconnected {
		return nil
	}
	s.policy.Reset()
	// the first attempt is immediate but still counts against the retry budget
	s.policy.NextBackOff()
	s.dial()
	return nil
}

func (s *Service) dial() {
	s.gen++
	gen := s.gen
	id := *s.identity
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.setState(StateConnecting)

	go func() {
		conn, err := s.dialer.Dial(ctx, id)
		if !s.disp.post(func() { s.dialed(gen, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (s *Service) dialed(gen uint64, conn transport.Conn, err error) {
	if gen != s.gen || s.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if err != nil {
		log.Printf("realtime: connect failed: %v", err)
		s.scheduleRetry(err)
		return
	}

	s.conn = conn
	s.policy.Reset()
	s.setState(StateConnected)
	s.recordLifecycle(telemetry.LifecyclePayload{Event: telemetry.EventConnected})
	go s.read(gen, conn)

	// the server forgets memberships with the old socket
	if s.active != "" {
		s.emit(models.EventJoinRoom, models.RoomPayload{RoomID: s.active})
	}
}

func (s *Service) read(gen uint64, conn transport.Conn) {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			s.disp.post(func() { s.dropped(gen, err) })
			return
		}
		s.disp.post(func() {
			if gen == s.gen && !s.closed {
				s.handle(event)
			}
		})
	}
}

func (s *Service) dropped(gen uint64, err error) {
	if gen != s.gen || s.closed {
		return
	}
	log.Printf("realtime: connection lost: %v", err)
	s.releaseConn()
	s.recordLifecycle(telemetry.LifecyclePayload{Event: telemetry.EventDisconnected, Reason: err.Error()})
	s.scheduleRetry(err)
}

func (s *Service) scheduleRetry(cause error) {
	delay := s.policy.NextBackOff()
	if delay == backoff.Stop {
		log.Printf("realtime: giving up after %d attempts: %v", s.cfg.MaxReconnectAttempts, cause)
		s.setState(StateDisconnected)
		s.recordLifecycle(telemetry.LifecyclePayload{
			Event:   telemetry.EventReconnectExhausted,
			Attempt: s.cfg.MaxReconnectAttempts,
			Reason:  cause.Error(),
		})
		return
	}
	s.setState(StateConnecting)
	s.retry = s.after(delay, func() {
		s.retry = nil
		observability.IncReconnectAttempt()
		s.dial()
	})
}

func (s *Service) disconnect() {
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.retry.stop()
	s.retry = nil
	s.flushTyping()
	wasConnected := s.conn != nil
	s.releaseConn()
	s.setState(StateDisconnected)
	if wasConnected {
		s.recordLifecycle(telemetry.LifecyclePayload{Event: telemetry.EventDisconnected, Reason: "requested"})
	}
}

// releaseConn drops the socket and everything that only holds while it is up.
func (s *Service) releaseConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	for room, t := range s.localTyping {
		t.stop()
		delete(s.localTyping, room)
	}
	s.clearRemoteTyping()
	s.clearPresence()
}

func (s *Service) setState(state ConnState) {
	if s.state == state {
		return
	}
	s.state = state
	observability.SetConnectionState(int(state))
	s.stateSubs.emit(state)
}

// emit writes an outbound event. It reports false when there is no connection.
func (s *Service) emit(eventType string, payload any) bool {
	if s.state != StateConnected || s.conn == nil {
		return false
	}
	event, err := models.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("realtime: %v", err)
		return false
	}
	if err := s.conn.WriteEvent(event); err != nil {
		if !errors.Is(err, transport.ErrClosed) {
			log.Printf("realtime: write %s: %v", eventType, err)
		}
		return false
	}
	return true
}

func (s *Service) handle(event models.Event) {
	observability.IncInboundEvent(event.Type)
	switch event.Type {
	case models.EventNewMessage:
		var msg models.Message
		if err := event.Decode(&msg); err != nil {
			log.Printf("realtime: %v", err)
			return
		}
		s.receiveMessage(msg)
	case models.EventMessageSeen:
		var seen models.SeenPayload
		if err := event.Decode(&seen); err != nil {
			log.Printf("realtime: %v", err)
			return
		}
		s.receiveSeen(seen)
	case models.EventUserTyping, models.EventUserStoppedTyping:
		var p models.TypingPayload
		if err := event.Decode(&p); err != nil {
			log.Printf("realtime: %v", err)
			return
		}
		s.receiveTyping(p, event.Type == models.EventUserTyping)
	case models.EventPresenceSnapshot:
		var p models.PresencePayload
		if len(event.Payload) > 0 {
			if err := event.Decode(&p); err != nil {
				log.Printf("realtime: %v", err)
				return
			}
		}
		s.replacePresence(p.UserIDs)
	default:
		log.Printf("realtime: ignoring unknown event %q", event.Type)
	}
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	writeWait               = 10 * time.Second
	sendQueueSize           = 256
)

// WebSocketDialer dials the backend's websocket endpoint.
type WebSocketDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	// PongWait bounds how long the connection may stay silent; pings go out at 9/10 of it.
	PongWait time.Duration
}

// NewWebSocketDialer builds a dialer for the given ws:// or wss:// endpoint.
func NewWebSocketDialer(endpoint string) *WebSocketDialer {
	return &WebSocketDialer{
		URL:              endpoint,
		HandshakeTimeout: defaultHandshakeTimeout,
		PongWait:         defaultPongWait,
	}
}

// Dial connects as id. The user id travels as a query parameter and the token as a bearer header.
func (d *WebSocketDialer) Dial(ctx context.Context, id auth.Identity) (Conn, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return nil, errors.New("transport: user id is required")
	}
	target, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	query := target.Query()
	query.Set("user_id", id.UserID)
	target.RawQuery = query.Encode()

	header := http.Header{}
	if id.Token != "" {
		header.Set("Authorization", "Bearer "+id.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}
	ws, resp, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	pongWait := d.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return newWSConn(ws, pongWait), nil
}

type wsConn struct {
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	pongWait time.Duration
}

func newWSConn(ws *websocket.Conn, pongWait time.Duration) *wsConn {
	c := &wsConn{
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		pongWait: pongWait,
	}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writePump()
	return c
}

func (c *wsConn) ReadEvent() (models.Event, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return models.Event{}, ErrClosed
		default:
		}
		return models.Event{}, err
	}
	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return models.Event{}, fmt.Errorf("decode frame: %w", err)
	}
	return event, nil
}

func (c *wsConn) WriteEvent(event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return errors.New("transport: send queue full")
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("transport: write error: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes frames queued before Close, so a goodbye such as typing-stop is not lost.
func (c *wsConn) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

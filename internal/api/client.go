// Package api is the request/response client for the REST chat API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
)

var ErrUnauthenticated = errors.New("api: no authenticated identity")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// SendRequest is the body of a send-message call.
type SendRequest struct {
	RoomID          string             `json:"-"`
	Body            string             `json:"body"`
	Kind            models.MessageKind `json:"kind"`
	ClientMessageID string             `json:"client_message_id,omitempty"`
}

// ChatAPI is the chat backend's request/response surface.
type ChatAPI interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetRoom(ctx context.Context, roomID string) (models.RoomDetail, error)
	SendMessage(ctx context.Context, req SendRequest) (models.Message, error)
	CreateOrGetRoom(ctx context.Context, targetUserID string) (models.Room, error)
}

// Client implements ChatAPI over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   auth.Source
}

// NewClient builds a client for baseURL, authenticating with identity's token.
func NewClient(baseURL string, identity auth.Source) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		identity:   identity,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// ListConversations returns the conversations of the authenticated user.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var resp struct {
		Chats []models.Conversation `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// GetRoom returns the room, its ordered history and the other participant.
func (c *Client) GetRoom(ctx context.Context, roomID string) (models.RoomDetail, error) {
	var detail models.RoomDetail
	err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(roomID), nil, &detail)
	return detail, err
}

// SendMessage posts a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(req.RoomID)+"/messages", req, &msg)
	return msg, err
}

// CreateOrGetRoom returns the private room with targetUserID, creating it when needed.
func (c *Client) CreateOrGetRoom(ctx context.Context, targetUserID string) (models.Room, error) {
	body := map[string]string{"user_id": targetUserID}
	var resp struct {
		Room models.Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodPost, "/chats/start", body, &resp); err != nil {
		return models.Room{}, err
	}
	return resp.Room, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) (err error) {
	ctx, span := otel.Tracer("chat-sync/api").Start(ctx, method+" "+path)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	id, ok := c.identity.Current()
	if !ok {
		return ErrUnauthenticated
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	req.Header.Set("X-User-ID", id.UserID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Package api is the REST fallback for the sync core: conversation and
// history loads always go through it, and sends use it whenever the socket
// is down.
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
	"time"

	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

// ErrUnauthorized means the token was missing, expired, or rejected. The UI
// layer treats it as a re-authentication prompt, not a connectivity problem.
var ErrUnauthorized = errors.New("api: unauthorized")

// APIError is a non-2xx response from the messaging backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

const defaultRequestTimeout = 15 * time.Second

// Config configures the REST client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	BaseURL string
	// Token returns the current bearer token. Required.
	Token func() string
	// HTTPClient is used for all requests. If nil, a client with a 15s
	// timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, zap.NewNop() is used.
	Logger *zap.Logger
}

// Client talks to the messaging backend's REST surface.
type Client struct {
	baseURL string
	token   func() string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a REST client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("api: Token provider is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    httpClient,
		log:     logger,
	}, nil
}

// ConversationList is the response of GET /api/conversations.
type ConversationList struct {
	Conversations []model.Conversation `json:"conversations"`
	TotalUnread   int                  `json:"totalUnread"`
}

// MessagePage is one page of conversation history, oldest first.
type MessagePage struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

// SendMessageRequest is the body of POST /api/conversations/:id/messages.
type SendMessageRequest struct {
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type"`
	ClientID string            `json:"clientId,omitempty"`
	ReplyTo  string            `json:"replyTo,omitempty"`
}

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	ParticipantIDs []string               `json:"participantIds"`
	Kind           model.ConversationKind `json:"kind"`
	Title          string                 `json:"title,omitempty"`
}

// ListConversations fetches the caller's conversations and the aggregate
// unread count.
func (c *Client) ListConversations(ctx context.Context) (*ConversationList, error) {
	var out ConversationList
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages fetches a history page for a conversation. A non-empty before
// cursor (a message ID) pages backwards from that message.
func (c *Client) Messages(ctx context.Context, conversationID, before string) (*MessagePage, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	if before != "" {
		path += "?before=" + url.QueryEscape(before)
	}
	var out MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation creates a conversation and returns the canonical record.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error) {
	var out struct {
		Conversation model.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

// SendMessage posts a message over REST and returns the canonical message
// the server stored.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (*model.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	var out struct {
		Message model.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// MarkRead marks the whole conversation read for the caller.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/api/conversations/%s/read", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}

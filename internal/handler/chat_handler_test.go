package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/hub"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/middleware"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/service"
)

type mockChatService struct {
	ListConversationsFunc  func(ctx context.Context, userID string) ([]model.Conversation, int, error)
	HistoryFunc            func(ctx context.Context, userID, conversationID, before string) ([]model.Message, bool, error)
	CreateConversationFunc func(ctx context.Context, creatorID string, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error)
	SendMessageFunc        func(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error)
	MarkReadFunc           func(ctx context.Context, userID, conversationID string) ([]string, time.Time, error)
}

func (m *mockChatService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, int, error) {
	return m.ListConversationsFunc(ctx, userID)
}

func (m *mockChatService) History(ctx context.Context, userID, conversationID, before string) ([]model.Message, bool, error) {
	return m.HistoryFunc(ctx, userID, conversationID, before)
}

func (m *mockChatService) CreateConversation(ctx context.Context, creatorID string, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error) {
	return m.CreateConversationFunc(ctx, creatorID, participantIDs, kind, title)
}

func (m *mockChatService) SendMessage(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error) {
	return m.SendMessageFunc(ctx, userID, displayName, conversationID, clientID, content, msgType, replyTo)
}

func (m *mockChatService) MarkRead(ctx context.Context, userID, conversationID string) ([]string, time.Time, error) {
	return m.MarkReadFunc(ctx, userID, conversationID)
}

// Hub storage stubs. The handler's fan-out runs against an empty hub, so
// nothing here is ever read beyond NotifyRead's conversation lookup.
type stubMessages struct{}

func (stubMessages) InsertMessage(ctx context.Context, msg *model.Message) error { return nil }

func (stubMessages) History(ctx context.Context, conversationID, before string) ([]model.Message, bool, error) {
	return nil, false, nil
}

func (stubMessages) UpdateStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error {
	return nil
}

func (stubMessages) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	return nil, nil
}

func (stubMessages) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	return 0, nil
}

type stubConversations struct{}

func (stubConversations) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return nil, nil
}

func (stubConversations) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	return nil, nil
}

func (stubConversations) Create(ctx context.Context, conv *model.Conversation) error { return nil }

func (stubConversations) TouchLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error {
	return nil
}

func newTestRouter(t *testing.T, chat service.ChatService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	presence := service.NewPresenceService(
		redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), zap.NewNop())
	h := hub.NewHub(stubMessages{}, stubConversations{}, presence, nil, zap.NewNop())
	t.Cleanup(h.Stop)

	handler := NewChatHandler(chat, h, zap.NewNop())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "u1")
		c.Set(middleware.ContextDisplayName, "Aunty May")
	})
	group := router.Group("/api/conversations")
	group.GET("", handler.ListConversations)
	group.POST("", handler.CreateConversation)
	group.GET("/:conversationId/messages", handler.GetMessages)
	group.POST("/:conversationId/messages", handler.SendMessage)
	group.POST("/:conversationId/read", handler.MarkRead)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListConversationsResponseShape(t *testing.T) {
	chat := &mockChatService{
		ListConversationsFunc: func(ctx context.Context, userID string) ([]model.Conversation, int, error) {
			assert.Equal(t, "u1", userID)
			return []model.Conversation{{ID: "c1"}, {ID: "c2"}}, 7, nil
		},
	}
	router := newTestRouter(t, chat)

	w := doJSON(t, router, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Conversations []model.Conversation `json:"conversations"`
		TotalUnread   int                  `json:"totalUnread"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Conversations, 2)
	assert.Equal(t, 7, body.TotalUnread)
}

func TestGetMessagesPassesBeforeCursor(t *testing.T) {
	chat := &mockChatService{
		HistoryFunc: func(ctx context.Context, userID, conversationID, before string) ([]model.Message, bool, error) {
			assert.Equal(t, "c1", conversationID)
			assert.Equal(t, "m42", before)
			return []model.Message{{ID: "m41"}}, true, nil
		},
	}
	router := newTestRouter(t, chat)

	w := doJSON(t, router, http.MethodGet, "/api/conversations/c1/messages?before=m42", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []model.Message `json:"messages"`
		HasMore  bool            `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Messages, 1)
	assert.True(t, body.HasMore)
}

func TestSendMessageForwardsIdentityAndClientID(t *testing.T) {
	chat := &mockChatService{
		SendMessageFunc: func(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "Aunty May", displayName)
			assert.Equal(t, "temp-9", clientID)
			conv := &model.Conversation{ID: conversationID}
			return conv, &model.Message{ID: "m1", ClientID: clientID, Content: content}, nil
		},
	}
	router := newTestRouter(t, chat)

	w := doJSON(t, router, http.MethodPost, "/api/conversations/c1/messages",
		`{"content":"hello","clientId":"temp-9"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Message model.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "m1", body.Message.ID)
	assert.Equal(t, "temp-9", body.Message.ClientID)
}

func TestMarkReadReportsCount(t *testing.T) {
	chat := &mockChatService{
		MarkReadFunc: func(ctx context.Context, userID, conversationID string) ([]string, time.Time, error) {
			return []string{"m1", "m2", "m3"}, time.Now(), nil
		},
	}
	router := newTestRouter(t, chat)

	w := doJSON(t, router, http.MethodPost, "/api/conversations/c1/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"marked":3}`, w.Body.String())
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantTag  string
	}{
		{"not found", service.ErrConversationNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"not a member", service.ErrNotParticipant, http.StatusForbidden, "FORBIDDEN"},
		{"empty content", service.ErrEmptyContent, http.StatusBadRequest, "BAD_REQUEST"},
		{"storage failure", errors.New("mongo down"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &mockChatService{
				SendMessageFunc: func(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error) {
					return nil, nil, tc.err
				},
			}
			router := newTestRouter(t, chat)

			w := doJSON(t, router, http.MethodPost, "/api/conversations/c1/messages",
				`{"content":"hello"}`)
			require.Equal(t, tc.wantCode, w.Code)

			var body struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantTag, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMalformedBodyIsRejected(t *testing.T) {
	router := newTestRouter(t, &mockChatService{})

	w := doJSON(t, router, http.MethodPost, "/api/conversations/c1/messages", `{"content":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}

func TestCreateConversationReturnsCreated(t *testing.T) {
	chat := &mockChatService{
		CreateConversationFunc: func(ctx context.Context, creatorID string, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error) {
			assert.Equal(t, "u1", creatorID)
			assert.Equal(t, []string{"u2"}, participantIDs)
			return &model.Conversation{ID: "c1", Kind: model.ConversationDirect}, nil
		},
	}
	router := newTestRouter(t, chat)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", `{"participantIds":["u2"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"c1"`)
}

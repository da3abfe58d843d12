package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/service"
)

type mockMessageRepo struct {
	InsertMessageFunc func(ctx context.Context, msg *model.Message) error
	UpdateStatusFunc  func(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error
}

func (m *mockMessageRepo) InsertMessage(ctx context.Context, msg *model.Message) error {
	if m.InsertMessageFunc != nil {
		return m.InsertMessageFunc(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) History(ctx context.Context, conversationID, before string) ([]model.Message, bool, error) {
	return nil, false, nil
}

func (m *mockMessageRepo) UpdateStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, conversationID, messageID, status, at)
	}
	return nil
}

func (m *mockMessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	return nil, nil
}

func (m *mockMessageRepo) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	return 0, nil
}

type mockConversationRepo struct {
	GetFunc func(ctx context.Context, conversationID string) (*model.Conversation, error)
}

func (m *mockConversationRepo) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockConversationRepo) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	return nil
}

func (m *mockConversationRepo) TouchLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error {
	return nil
}

func directConversation(id string, userIDs ...string) *model.Conversation {
	parts := make([]model.Participant, 0, len(userIDs))
	for _, uid := range userIDs {
		parts = append(parts, model.Participant{UserID: uid, DisplayName: uid, Role: model.RoleMember})
	}
	return &model.Conversation{ID: id, Kind: model.ConversationDirect, Participants: parts}
}

type hubEnv struct {
	hub *Hub
	srv *httptest.Server
}

// newHubEnv starts a hub whose presence backend is unreachable; presence
// writes fail and are logged, everything else works in memory.
func newHubEnv(t *testing.T, messages *mockMessageRepo, conversations *mockConversationRepo) *hubEnv {
	t.Helper()

	presence := service.NewPresenceService(
		redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), zap.NewNop())
	h := NewHub(messages, conversations, presence, nil, zap.NewNop())
	t.Cleanup(h.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("user"), r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)

	return &hubEnv{hub: h, srv: srv}
}

func (e *hubEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Wait until the hub's manager loop has registered the socket.
	deadline := time.Now().Add(2 * time.Second)
	for !e.hub.IsOnline(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never registered", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// readEvent reads frames until one with the wanted tag arrives.
func readEvent(t *testing.T, conn *websocket.Conn, wantTag string) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env event.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", wantTag)
		if env.Event != wantTag {
			continue
		}
		ev, err := event.Decode(env)
		require.NoError(t, err)
		return ev
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev event.Event) {
	t.Helper()
	env, err := event.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func TestSendFlowAcksEchoesAndDelivers(t *testing.T) {
	var inserted *model.Message
	var statusUpdates []model.MessageStatus
	messages := &mockMessageRepo{
		InsertMessageFunc: func(ctx context.Context, msg *model.Message) error {
			inserted = msg
			return nil
		},
		UpdateStatusFunc: func(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error {
			statusUpdates = append(statusUpdates, status)
			return nil
		},
	}
	conversations := &mockConversationRepo{
		GetFunc: func(ctx context.Context, conversationID string) (*model.Conversation, error) {
			return directConversation("c1", "u1", "u2"), nil
		},
	}
	env := newHubEnv(t, messages, conversations)

	sender := env.dial(t, "u1")
	recipient := env.dial(t, "u2")

	sendEvent(t, sender, &event.MessageSend{
		ConversationID: "c1",
		ClientID:       "temp-1",
		Content:        "hello",
		Type:           model.MessageText,
	})

	// The sender gets the ack mapping the provisional id.
	ack := readEvent(t, sender, event.EventMessageSent).(*event.MessageSent)
	assert.Equal(t, "temp-1", ack.ClientID)
	assert.NotEmpty(t, ack.MessageID)
	assert.False(t, model.IsTempID(ack.MessageID))

	// Both participants get the broadcast, recipient included.
	echo := readEvent(t, sender, event.EventMessageNew).(*event.MessageNew)
	assert.Equal(t, "temp-1", echo.Message.ClientID, "echo carries the provisional id hint")
	assert.Equal(t, ack.MessageID, echo.Message.ID)

	got := readEvent(t, recipient, event.EventMessageNew).(*event.MessageNew)
	assert.Equal(t, "hello", got.Message.Content)
	assert.Equal(t, "u1", got.Message.SenderID)

	// The online recipient produces a delivery receipt back to the sender.
	delivered := readEvent(t, sender, event.EventMessageDelivered).(*event.MessageDelivered)
	assert.Equal(t, ack.MessageID, delivered.MessageID)
	assert.Equal(t, "u2", delivered.DeliveredTo)

	require.NotNil(t, inserted)
	assert.Equal(t, model.StatusSent, inserted.Status)
	assert.Equal(t, []model.MessageStatus{model.StatusDelivered}, statusUpdates)
}

func TestSendFromNonMemberIsDropped(t *testing.T) {
	conversations := &mockConversationRepo{
		GetFunc: func(ctx context.Context, conversationID string) (*model.Conversation, error) {
			return directConversation("c1", "u2", "u3"), nil
		},
	}
	var inserted bool
	messages := &mockMessageRepo{
		InsertMessageFunc: func(ctx context.Context, msg *model.Message) error {
			inserted = true
			return nil
		},
	}
	env := newHubEnv(t, messages, conversations)

	outsider := env.dial(t, "u1")
	sendEvent(t, outsider, &event.MessageSend{ConversationID: "c1", ClientID: "temp-1", Content: "hi"})

	// Nothing comes back and nothing is stored.
	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var env2 event.Envelope
	assert.Error(t, outsider.ReadJSON(&env2))
	assert.False(t, inserted)
}

func TestTypingFanOutSkipsSender(t *testing.T) {
	conversations := &mockConversationRepo{
		GetFunc: func(ctx context.Context, conversationID string) (*model.Conversation, error) {
			return directConversation("c1", "u1", "u2"), nil
		},
	}
	env := newHubEnv(t, &mockMessageRepo{}, conversations)

	typer := env.dial(t, "u1")
	watcher := env.dial(t, "u2")

	sendEvent(t, typer, &event.TypingStart{ConversationID: "c1"})

	typing := readEvent(t, watcher, event.EventMessageTyping).(*event.MessageTyping)
	assert.Equal(t, "u1", typing.UserID)
	assert.True(t, typing.IsTyping)

	sendEvent(t, typer, &event.TypingStop{ConversationID: "c1"})
	typing = readEvent(t, watcher, event.EventMessageTyping).(*event.MessageTyping)
	assert.False(t, typing.IsTyping)

	// The typer never hears their own indicator.
	require.NoError(t, typer.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var raw event.Envelope
	assert.Error(t, typer.ReadJSON(&raw))
}

func TestNotifyReadFansOutPerMessage(t *testing.T) {
	conversations := &mockConversationRepo{
		GetFunc: func(ctx context.Context, conversationID string) (*model.Conversation, error) {
			return directConversation("c1", "u1", "u2"), nil
		},
	}
	env := newHubEnv(t, &mockMessageRepo{}, conversations)

	sender := env.dial(t, "u1")
	env.dial(t, "u2")

	readAt := time.Now().UTC()
	env.hub.NotifyRead("c1", "u2", []string{"m1", "m2"}, readAt)

	first := readEvent(t, sender, event.EventMessageRead).(*event.MessageRead)
	second := readEvent(t, sender, event.EventMessageRead).(*event.MessageRead)
	assert.ElementsMatch(t, []string{"m1", "m2"}, []string{first.MessageID, second.MessageID})
	assert.Equal(t, "u2", first.ReadBy)
}

func TestPresenceWatchAndFanOut(t *testing.T) {
	env := newHubEnv(t, &mockMessageRepo{}, &mockConversationRepo{})

	watcher := env.dial(t, "u1")
	sendEvent(t, watcher, &event.PresenceSubscribe{UserIDs: []string{"u2"}})

	// Wait for the subscription to be applied before u2 appears.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := NewMonitorService(env.hub).GetStats()
		if len(stats.Clients) == 1 && stats.Clients[0].Watching == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	peer := env.dial(t, "u2")

	update := readEvent(t, watcher, event.EventPresenceUpdate).(*event.PresenceUpdate)
	assert.Equal(t, "u2", update.UserID)
	assert.Equal(t, model.PresenceOnline, update.Status)

	peer.Close()
	update = readEvent(t, watcher, event.EventPresenceUpdate).(*event.PresenceUpdate)
	assert.Equal(t, model.PresenceOffline, update.Status)
}

func TestMonitorStats(t *testing.T) {
	env := newHubEnv(t, &mockMessageRepo{}, &mockConversationRepo{})
	ms := NewMonitorService(env.hub)

	stats := ms.GetStats()
	assert.Equal(t, "idle", stats.Status)

	env.dial(t, "u1")
	env.dial(t, "u1") // second tab
	env.dial(t, "u2")

	stats = ms.GetStats()
	assert.Equal(t, "healthy", stats.Status)
	assert.Equal(t, 2, stats.Connections.TotalConnected)
	assert.Equal(t, 3, stats.Connections.TotalSockets)
	assert.Len(t, stats.Clients, 3)
}

package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/repo"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/service"
)

const (
	opTimeout = 10 * time.Second // budget for hub-initiated storage operations
)

type inboundMessage struct {
	envelope event.Envelope
	client   *Client
}

// Hub routes socket events between connected clients. Connections are keyed
// by user: a user with several tabs open holds several clients, and presence
// transitions fire only on the first connect and the last disconnect.
type Hub struct {
	mu          sync.RWMutex
	onlineUsers map[string]map[string]*Client // userID -> clientID -> client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	presence      *service.PresenceService
	logger        *zap.Logger
	upgrader      websocket.Upgrader

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	presence *service.PresenceService,
	allowedOrigins []string,
	logger *zap.Logger,
) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		onlineUsers:   make(map[string]map[string]*Client),
		register:      make(chan *Client, 1024),
		unregister:    make(chan *Client, 1024),
		inbound:       make(chan inboundMessage, 4096), // buffer for burst handling
		messages:      messages,
		conversations: conversations,
		presence:      presence,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[origin]
			return ok
		},
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.envelope, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// ServeWS upgrades an authenticated request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, displayName string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, displayName, conn, h)
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.RLock()
	for _, sockets := range h.onlineUsers {
		for _, client := range sockets {
			client.Close()
		}
	}
	h.mu.RUnlock()

	close(h.inbound)
	h.wg.Wait()
}

// -----------------------------------------------------------------
// Registry
// -----------------------------------------------------------------

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	sockets, ok := h.onlineUsers[c.userID]
	if !ok {
		sockets = make(map[string]*Client)
		h.onlineUsers[c.userID] = sockets
	}
	sockets[c.ID] = c
	firstSocket := len(sockets) == 1
	h.mu.Unlock()

	if !firstSocket {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()
	if err := h.presence.SetOnline(ctx, c.userID); err != nil {
		h.logger.Warn("failed to record online presence", zap.String("user_id", c.userID), zap.Error(err))
	}
	now := time.Now()
	h.notifyWatchers(model.Presence{UserID: c.userID, Status: model.PresenceOnline, LastSeen: &now})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	lastSocket := false
	if sockets, ok := h.onlineUsers[c.userID]; ok {
		if _, exists := sockets[c.ID]; exists {
			delete(sockets, c.ID)
		}
		if len(sockets) == 0 {
			delete(h.onlineUsers, c.userID)
			lastSocket = true
		}
	}
	h.mu.Unlock()

	c.Close()

	if !lastSocket {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := h.presence.SetOffline(ctx, c.userID); err != nil {
		h.logger.Warn("failed to record offline presence", zap.String("user_id", c.userID), zap.Error(err))
	}
	now := time.Now()
	h.notifyWatchers(model.Presence{UserID: c.userID, Status: model.PresenceOffline, LastSeen: &now})
}

// IsOnline reports whether a user holds at least one live socket.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.onlineUsers[userID]) > 0
}

// -----------------------------------------------------------------
// Inbound event handling
// -----------------------------------------------------------------

func (h *Hub) handleEvent(env event.Envelope, c *Client) {
	ev, err := event.Decode(env)
	if err != nil {
		h.logger.Warn("dropping undecodable event",
			zap.String("client_id", c.ID),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return
	}

	switch payload := ev.(type) {
	case *event.MessageSend:
		h.handleMessageSend(c, payload)
	case *event.TypingStart:
		h.handleTyping(c, payload.ConversationID, true)
	case *event.TypingStop:
		h.handleTyping(c, payload.ConversationID, false)
	case *event.PresenceSubscribe:
		h.handlePresenceSubscribe(c, payload.UserIDs)
	case *event.PresenceUnsubscribe:
		c.Unwatch(payload.UserIDs)
	default:
		// server-to-client tags are not accepted inbound
		h.logger.Warn("unexpected inbound event",
			zap.String("client_id", c.ID),
			zap.String("event", env.Event),
		)
	}
}

func (h *Hub) handleMessageSend(c *Client, payload *event.MessageSend) {
	if payload.Content == "" || payload.ConversationID == "" {
		h.logger.Warn("dropping empty send", zap.String("client_id", c.ID))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()

	conv, err := h.conversations.Get(ctx, payload.ConversationID)
	if err != nil {
		h.logger.Error("send failed: conversation lookup", zap.String("conversation_id", payload.ConversationID), zap.Error(err))
		return
	}
	if conv == nil || !conv.HasParticipant(c.userID) {
		h.logger.Warn("dropping send for non-member",
			zap.String("user_id", c.userID),
			zap.String("conversation_id", payload.ConversationID),
		)
		return
	}

	msgType := payload.Type
	if msgType == "" {
		msgType = model.MessageText
	}

	now := time.Now().UTC()
	msg := model.Message{
		ID:             uuid.New().String(),
		ClientID:       payload.ClientID,
		ConversationID: conv.ID,
		SenderID:       c.userID,
		SenderName:     c.displayName,
		Content:        payload.Content,
		Type:           msgType,
		ReplyTo:        payload.ReplyTo,
		CreatedAt:      now,
		Status:         model.StatusSent,
	}

	if err := h.messages.InsertMessage(ctx, &msg); err != nil {
		h.logger.Error("send failed: insert", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if err := h.conversations.TouchLastMessage(ctx, conv.ID, msg.Preview()); err != nil {
		h.logger.Warn("failed to update conversation preview", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	// Ack the originating socket before fanning out, so the sender's client
	// reconciles by clientId even if the echo races ahead.
	if ack, err := event.Encode(&event.MessageSent{
		ConversationID: conv.ID,
		ClientID:       payload.ClientID,
		MessageID:      msg.ID,
		Timestamp:      now,
	}); err == nil {
		c.SafeSend(ack, sendTimeout)
	}

	if env, err := event.Encode(&event.MessageNew{Message: msg}); err == nil {
		h.broadcastToUsers(conv.ParticipantIDs(), env, "")
	}

	h.recordDeliveries(ctx, conv, &msg)
}

// recordDeliveries marks the message delivered for every recipient that
// currently holds a socket and reports each delivery back to the sender.
func (h *Hub) recordDeliveries(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	recipients := service.Filter(conv.ParticipantIDs(), func(id string) bool {
		return id != msg.SenderID && h.IsOnline(id)
	})
	if len(recipients) == 0 {
		return
	}

	now := time.Now().UTC()
	if err := h.messages.UpdateStatus(ctx, conv.ID, msg.ID, model.StatusDelivered, now); err != nil {
		h.logger.Warn("failed to record delivery", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	for _, userID := range recipients {
		env, err := event.Encode(&event.MessageDelivered{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			DeliveredTo:    userID,
			DeliveredAt:    now,
		})
		if err != nil {
			continue
		}
		h.sendToUser(msg.SenderID, env)
	}
}

func (h *Hub) handleTyping(c *Client, conversationID string, isTyping bool) {
	if conversationID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()

	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil || conv == nil || !conv.HasParticipant(c.userID) {
		return
	}

	env, err := event.Encode(&event.MessageTyping{
		ConversationID: conversationID,
		UserID:         c.userID,
		IsTyping:       isTyping,
	})
	if err != nil {
		return
	}
	h.broadcastToUsers(conv.ParticipantIDs(), env, c.userID)
}

func (h *Hub) handlePresenceSubscribe(c *Client, userIDs []string) {
	c.Watch(userIDs)

	// Push the current state for each watched user so the subscriber does
	// not wait for the next transition.
	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()

	for _, id := range userIDs {
		p, err := h.presence.Get(ctx, id)
		if err != nil {
			h.logger.Warn("presence lookup failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		env, err := event.Encode(&event.PresenceUpdate{
			UserID:   p.UserID,
			Status:   p.Status,
			LastSeen: p.LastSeen,
		})
		if err != nil {
			continue
		}
		c.SafeSend(env, sendTimeout)
	}
}

// NotifyRead fans read receipts out to every participant other than the
// reader. Called by the REST layer after a conversation is marked read.
func (h *Hub) NotifyRead(conversationID, readerID string, messageIDs []string, readAt time.Time) {
	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()

	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil || conv == nil {
		return
	}

	for _, id := range messageIDs {
		env, err := event.Encode(&event.MessageRead{
			ConversationID: conversationID,
			MessageID:      id,
			ReadBy:         readerID,
			ReadAt:         readAt,
		})
		if err != nil {
			continue
		}
		h.broadcastToUsers(conv.ParticipantIDs(), env, readerID)
	}
}

// NotifyMessage fans a REST-created message out as if it had arrived over a
// socket: echo to the sender's sockets, delivery receipts for online
// recipients.
func (h *Hub) NotifyMessage(conv *model.Conversation, msg *model.Message) {
	if env, err := event.Encode(&event.MessageNew{Message: *msg}); err == nil {
		h.broadcastToUsers(conv.ParticipantIDs(), env, "")
	}

	ctx, cancel := context.WithTimeout(h.ctx, opTimeout)
	defer cancel()
	h.recordDeliveries(ctx, conv, msg)
}

// -----------------------------------------------------------------
// Fan-out
// -----------------------------------------------------------------

func (h *Hub) sendToUser(userID string, env event.Envelope) {
	h.mu.RLock()
	sockets := h.onlineUsers[userID]
	clients := make([]*Client, 0, len(sockets))
	for _, c := range sockets {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.SafeSend(env, sendTimeout) && kickOnFull {
			h.logger.Warn("egress full, disconnecting client", zap.String("client_id", c.ID))
			select {
			case h.unregister <- c:
			case <-time.After(unregisterTimeout):
				h.logger.Warn("failed to unregister client: timeout", zap.String("client_id", c.ID))
			}
		}
	}
}

func (h *Hub) broadcastToUsers(userIDs []string, env event.Envelope, exceptUserID string) {
	for _, id := range userIDs {
		if id == exceptUserID {
			continue
		}
		h.sendToUser(id, env)
	}
}

func (h *Hub) notifyWatchers(p model.Presence) {
	env, err := event.Encode(&event.PresenceUpdate{
		UserID:   p.UserID,
		Status:   p.Status,
		LastSeen: p.LastSeen,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	watchers := make([]*Client, 0)
	for _, sockets := range h.onlineUsers {
		for _, c := range sockets {
			if c.IsWatching(p.UserID) {
				watchers = append(watchers, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range watchers {
		c.SafeSend(env, sendTimeout)
	}
}

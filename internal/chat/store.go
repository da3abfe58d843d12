// Package chat is the client-side messaging synchronization core. A Store
// keeps a local view of conversations and messages consistent with the
// server's event stream, reconciling optimistic local sends with server
// acknowledgements and inbound echoes, tracking remote typing indicators and
// presence, and falling back to the REST API while the socket is down.
//
// All state lives behind the Store's mutex and is mutated only by Store
// methods; external callers read snapshots and invoke actions. A single
// dispatch goroutine drains the transport, so event handling is serialized
// in arrival order.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/api"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/transport"
)

// Options tunes the store's timers. Zero values take the defaults.
type Options struct {
	// TypingExpiry removes a remote typing indicator with no stop event.
	TypingExpiry time.Duration
	// TypingIdle auto-stops the local typing signal after inactivity.
	TypingIdle time.Duration
	// AckTimeout fails a transport-path send with no acknowledgement.
	AckTimeout time.Duration
	// RequestTimeout bounds background REST calls.
	RequestTimeout time.Duration
}

func (o *Options) fillDefaults() {
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = 4 * time.Second
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = 2 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
}

// Config wires a Store to its collaborators.
type Config struct {
	// UserID and DisplayName identify the local user; optimistic inserts
	// carry them until the server echo arrives.
	UserID      string
	DisplayName string

	Transport transport.Transport
	API       *api.Client

	// Logger is used for structured logging. If nil, zap.NewNop() is used.
	Logger  *zap.Logger
	Options Options
}

// Store is the synchronization core's state container.
type Store struct {
	userID      string
	displayName string
	tr          transport.Transport
	api         *api.Client
	log         *zap.Logger
	opts        Options

	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	timelines     map[string]*timeline
	loaded        map[string]struct{}
	activeID      string
	totalUnread   int
	connState     transport.ConnState
	connErr       error
	typing        *typingTracker
	subscribers   map[int]chan struct{}
	nextSubID     int
	done          chan struct{}

	presence *presenceTracker

	ackMu sync.Mutex
	acks  map[string]*time.Timer

	localMu     sync.Mutex
	localTyping map[string]*time.Timer
}

// NewStore creates a disconnected store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("chat: UserID is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("chat: Transport is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("chat: API client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := cfg.Options
	opts.fillDefaults()

	s := &Store{
		userID:        cfg.UserID,
		displayName:   cfg.DisplayName,
		tr:            cfg.Transport,
		api:           cfg.API,
		log:           logger,
		opts:          opts,
		conversations: make(map[string]*model.Conversation),
		timelines:     make(map[string]*timeline),
		loaded:        make(map[string]struct{}),
		subscribers:   make(map[int]chan struct{}),
		presence:      newPresenceTracker(),
		acks:          make(map[string]*time.Timer),
		localTyping:   make(map[string]*time.Timer),
	}
	s.typing = newTypingTracker(opts.TypingExpiry, s.applyTypingChange)
	return s, nil
}

// -----------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------

// Connect establishes the event channel and starts dispatching. An
// authentication rejection surfaces as transport.ErrAuthFailed and is not
// retried; other connect failures are recorded as connection state and also
// returned.
func (s *Store) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("chat: already connected")
	}
	s.mu.Unlock()

	if err := s.tr.Connect(ctx, token); err != nil {
		s.mu.Lock()
		s.connState = transport.StateFailed
		s.connErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	s.connState = transport.StateConnected
	s.connErr = nil
	s.typing = newTypingTracker(s.opts.TypingExpiry, s.applyTypingChange)
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.dispatch(done)
	s.notify()
	return nil
}

// Disconnect stops dispatching, tears down the transport, and cancels every
// outstanding timer. Cached conversations and messages stay readable.
func (s *Store) Disconnect() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	typing := s.typing
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)

	s.stopAllLocalTyping(true)
	s.tr.Disconnect()
	typing.teardown()
	s.clearAllAcks()

	s.mu.Lock()
	s.connState = transport.StateDisconnected
	s.mu.Unlock()
	s.notify()
}

// dispatch serializes every transport event and status change. It is the
// event loop of the core: all reconciliation happens on this goroutine or on
// timer callbacks re-entering the same locked methods.
func (s *Store) dispatch(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-s.tr.Events():
			s.handleEvent(ev)
		case st := <-s.tr.Status():
			s.handleStatus(st)
		}
	}
}

func (s *Store) handleStatus(st transport.Status) {
	s.mu.Lock()
	s.connState = st.State
	s.connErr = st.Err
	s.mu.Unlock()

	if st.State == transport.StateConnected {
		// Presence subscriptions do not survive a reconnect server-side;
		// re-issue the whole watch set. Messages still in sending state
		// stay the caller's responsibility — no auto-resend.
		if ids := s.presence.watchedIDs(); len(ids) > 0 {
			if err := s.tr.Send(&event.PresenceSubscribe{UserIDs: ids}); err != nil {
				s.log.Warn("presence re-subscribe failed", zap.Error(err))
			}
		}
	}
	s.notify()
}

func (s *Store) handleEvent(ev event.Event) {
	switch e := ev.(type) {
	case *event.MessageNew:
		s.handleMessageNew(e)
	case *event.MessageSent:
		s.handleAck(e)
	case *event.MessageDelivered:
		s.handleReceipt(e.ConversationID, e.MessageID, model.StatusDelivered, e.DeliveredAt)
	case *event.MessageRead:
		s.handleReceipt(e.ConversationID, e.MessageID, model.StatusRead, e.ReadAt)
	case *event.MessageTyping:
		s.handleTyping(e)
	case *event.PresenceUpdate:
		s.handlePresence(e)
	default:
		// Outbound payload types never arrive from the server.
		s.log.Warn("dropping unexpected event", zap.String("event", ev.EventName()))
	}
}

// -----------------------------------------------------------------
// Reconciliation
// -----------------------------------------------------------------

// handleMessageNew merges an inbound message. Three cases, in order: the
// server identifier already exists (true duplicate — ignored); the event
// carries a provisional-identifier hint matching an optimistic insert
// (treated as a confirmation); otherwise a genuinely new message.
func (s *Store) handleMessageNew(e *event.MessageNew) {
	m := e.Message

	s.mu.Lock()
	t := s.timelineLocked(m.ConversationID)
	conv := s.ensureConversationLocked(m.ConversationID, m.CreatedAt)

	var stored *model.Message
	switch {
	case t.has(m.ID):
		s.mu.Unlock()
		return

	case m.ClientID != "" && t.has(m.ClientID):
		stored = t.confirm(m.ClientID, m.ID, m.CreatedAt)
		if stored == nil {
			s.mu.Unlock()
			return
		}
		s.clearAck(m.ClientID)

	default:
		msg := m
		if msg.SenderID != s.userID && !msg.Status.AtLeast(model.StatusDelivered) {
			msg.Status = model.StatusDelivered
			if msg.DeliveredAt == nil {
				now := time.Now()
				msg.DeliveredAt = &now
			}
		}
		if !t.append(&msg) {
			s.mu.Unlock()
			return
		}
		stored = &msg
		if m.ConversationID != s.activeID && msg.SenderID != s.userID {
			conv.UnreadCount++
		}
	}

	s.touchLocked(conv, stored)
	s.recomputeUnreadLocked()
	typing := s.typing
	s.mu.Unlock()

	// A message from a user supersedes their typing indicator.
	typing.stop(m.ConversationID, m.SenderID)
	s.notify()
}

// handleAck resolves a transport-path send: the provisional identifier is
// replaced in place by the server identifier and the status advances to
// sent. If the inbound echo already confirmed the message this is a no-op
// beyond the status advance.
func (s *Store) handleAck(e *event.MessageSent) {
	s.clearAck(e.ClientID)

	s.mu.Lock()
	t := s.timelineLocked(e.ConversationID)
	m := t.confirm(e.ClientID, e.MessageID, e.Timestamp)
	if m == nil {
		m = t.advance(e.MessageID, model.StatusSent, e.Timestamp)
	}
	if m == nil {
		s.mu.Unlock()
		s.log.Debug("ack for unknown send",
			zap.String("client_id", e.ClientID),
			zap.String("message_id", e.MessageID),
		)
		return
	}
	conv := s.ensureConversationLocked(e.ConversationID, e.Timestamp)
	s.touchLocked(conv, m)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handleReceipt(conversationID, messageID string, status model.MessageStatus, at time.Time) {
	s.mu.Lock()
	t := s.timelineLocked(conversationID)
	m := t.advance(messageID, status, at)
	s.mu.Unlock()

	if m != nil {
		s.notify()
	}
}

func (s *Store) handleTyping(e *event.MessageTyping) {
	if e.UserID == s.userID {
		return // echo of our own indicator
	}
	s.mu.RLock()
	typing := s.typing
	s.mu.RUnlock()

	if e.IsTyping {
		typing.start(e.ConversationID, e.UserID)
	} else {
		typing.stop(e.ConversationID, e.UserID)
	}
}

// applyTypingChange is the typing tracker's change hook; it keeps the
// per-conversation participant copies in step and wakes subscribers.
func (s *Store) applyTypingChange(conversationID, userID string, isTyping bool) {
	s.mu.Lock()
	if conv, ok := s.conversations[conversationID]; ok {
		if p := conv.Participant(userID); p != nil {
			p.Typing = isTyping
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handlePresence(e *event.PresenceUpdate) {
	p := model.Presence{UserID: e.UserID, Status: e.Status, LastSeen: e.LastSeen}
	if !s.presence.apply(p) {
		s.log.Debug("presence for unwatched user ignored", zap.String("user_id", e.UserID))
		return
	}

	s.mu.Lock()
	for _, conv := range s.conversations {
		if part := conv.Participant(e.UserID); part != nil {
			part.Online = p.Online()
			part.LastSeen = p.LastSeen
		}
	}
	s.mu.Unlock()
	s.notify()
}

// -----------------------------------------------------------------
// Actions
// -----------------------------------------------------------------

// LoadConversations replaces the conversation list from the REST API.
// Unread counts come from the server, except the active conversation which
// is always zero locally.
func (s *Store) LoadConversations(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i := range list.Conversations {
		c := list.Conversations[i]
		if c.ID == s.activeID {
			c.UnreadCount = 0
		}
		if prev, ok := s.conversations[c.ID]; ok {
			carryPresenceFlags(prev, &c)
		}
		s.conversations[c.ID] = &c
	}
	s.recomputeUnreadLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// carryPresenceFlags keeps locally-tracked participant state (online,
// last-seen, typing) across a conversation refresh from the server.
func carryPresenceFlags(prev, next *model.Conversation) {
	for i := range next.Participants {
		if p := prev.Participant(next.Participants[i].UserID); p != nil {
			next.Participants[i].Online = p.Online
			next.Participants[i].LastSeen = p.LastSeen
			next.Participants[i].Typing = p.Typing
		}
	}
}

// SetActiveConversation marks a conversation active, zeroes its unread
// count, and lazily loads its history on first activation.
func (s *Store) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
	s.recomputeUnreadLocked()
	_, loaded := s.loaded[conversationID]
	if !loaded && conversationID != "" {
		// Reserve the slot so concurrent activations load once.
		s.loaded[conversationID] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()

	if loaded || conversationID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		if _, err := s.LoadMessages(ctx, conversationID, ""); err != nil {
			s.log.Warn("history load failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			s.mu.Lock()
			delete(s.loaded, conversationID)
			s.mu.Unlock()
		}
	}()
}

// LoadMessages fetches a history page and merges it before the live tail,
// skipping messages already present. It reports whether older pages remain.
func (s *Store) LoadMessages(ctx context.Context, conversationID, before string) (bool, error) {
	page, err := s.api.Messages(ctx, conversationID, before)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	t := s.timelineLocked(conversationID)
	added := t.merge(page.Messages)
	s.loaded[conversationID] = struct{}{}
	s.mu.Unlock()

	if added > 0 {
		s.notify()
	}
	return page.HasMore, nil
}

// CreateConversation creates a conversation through the REST API and adds it
// to the local list.
func (s *Store) CreateConversation(ctx context.Context, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, api.CreateConversationRequest{
		ParticipantIDs: participantIDs,
		Kind:           kind,
		Title:          title,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c := *conv
	s.conversations[c.ID] = &c
	s.loaded[c.ID] = struct{}{} // a fresh conversation has no history
	s.recomputeUnreadLocked()
	s.mu.Unlock()
	s.notify()

	out := *conv
	return &out, nil
}

// MarkAsRead zeroes the conversation's unread count locally and tells the
// server. The local zeroing sticks even when the REST call fails.
func (s *Store) MarkAsRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
	s.recomputeUnreadLocked()
	s.mu.Unlock()
	s.notify()

	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		s.log.Warn("mark read failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SubscribePresence declares interest in the given users' presence.
func (s *Store) SubscribePresence(userIDs []string) {
	added := s.presence.subscribe(userIDs)
	if len(added) == 0 {
		return
	}
	if err := s.tr.Send(&event.PresenceSubscribe{UserIDs: added}); err != nil {
		// The watch set is kept; it is re-issued on the next connect.
		s.log.Debug("presence subscribe not sent", zap.Error(err))
	}
}

// UnsubscribePresence withdraws interest. Cached presence stays (stale).
func (s *Store) UnsubscribePresence(userIDs []string) {
	removed := s.presence.unsubscribe(userIDs)
	if len(removed) == 0 {
		return
	}
	if err := s.tr.Send(&event.PresenceUnsubscribe{UserIDs: removed}); err != nil {
		s.log.Debug("presence unsubscribe not sent", zap.Error(err))
	}
}

// -----------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------

// Conversations returns a copy of the conversation list ordered by most
// recent activity.
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Messages returns a copy of the conversation's message list in receipt
// order.
func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timelines[conversationID]
	if !ok {
		return nil
	}
	return t.snapshot()
}

// TotalUnread returns the aggregate unread count, always the sum of the
// per-conversation counts.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalUnread
}

// ActiveConversation returns the currently active conversation ID.
func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ConnState returns the connection state.
func (s *Store) ConnState() transport.ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// ConnError returns the last connection error, if any. It is state, not a
// fault: cached data stays readable while disconnected.
func (s *Store) ConnError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connErr
}

// TypingUsers returns the users currently typing in the conversation.
func (s *Store) TypingUsers(conversationID string) []string {
	s.mu.RLock()
	typing := s.typing
	s.mu.RUnlock()
	return typing.usersIn(conversationID)
}

// Presence returns the last-known presence for a user.
func (s *Store) Presence(userID string) (model.Presence, bool) {
	return s.presence.get(userID)
}

// Subscribe registers for coalesced change notifications. The returned
// channel receives at least one signal after any state change; cancel
// releases the registration.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// -----------------------------------------------------------------
// Locked helpers
// -----------------------------------------------------------------

func (s *Store) timelineLocked(conversationID string) *timeline {
	t, ok := s.timelines[conversationID]
	if !ok {
		t = newTimeline()
		s.timelines[conversationID] = t
	}
	return t
}

// ensureConversationLocked returns the conversation, creating a stub when a
// message arrives for one the client has not loaded yet.
func (s *Store) ensureConversationLocked(conversationID string, at time.Time) *model.Conversation {
	conv, ok := s.conversations[conversationID]
	if !ok {
		if at.IsZero() {
			at = time.Now()
		}
		conv = &model.Conversation{
			ID:        conversationID,
			Kind:      model.ConversationDirect,
			CreatedAt: at,
			UpdatedAt: at,
		}
		s.conversations[conversationID] = conv
		s.log.Debug("created conversation stub", zap.String("conversation_id", conversationID))
	}
	return conv
}

// touchLocked refreshes the conversation's preview and recency.
func (s *Store) touchLocked(conv *model.Conversation, m *model.Message) {
	if m == nil {
		return
	}
	if conv.LastMessage == nil || conv.LastMessage.MessageID == m.ClientID ||
		conv.LastMessage.MessageID == m.ID || !m.CreatedAt.Before(conv.LastMessage.SentAt) {
		conv.LastMessage = m.Preview()
	}
	if m.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = m.CreatedAt
	}
}

// recomputeUnreadLocked rebuilds the aggregate from scratch; it is never
// incrementally drifted.
func (s *Store) recomputeUnreadLocked() {
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	s.totalUnread = total
}

package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/api"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/transport"
)

// SendMessage sends a message on the preferred path. The message appears in
// the local timeline immediately, in sending state, under a provisional
// identifier; resolution happens asynchronously. Exactly one path is taken,
// decided by the transport's connected flag at call time and never
// re-evaluated mid-flight.
//
// The return value reports acceptance, not delivery: a true result means the
// send is in flight and will resolve to sent or failed.
func (s *Store) SendMessage(conversationID, content string, typ model.MessageType) bool {
	if typ == "" {
		typ = model.MessageText
	}
	clientID := model.NewTempID()
	now := time.Now()
	msg := &model.Message{
		ID:             clientID,
		ConversationID: conversationID,
		SenderID:       s.userID,
		SenderName:     s.displayName,
		Content:        content,
		Type:           typ,
		CreatedAt:      now,
		Status:         model.StatusSending,
	}

	s.mu.Lock()
	t := s.timelineLocked(conversationID)
	t.append(msg)
	conv := s.ensureConversationLocked(conversationID, now)
	s.touchLocked(conv, msg)
	s.mu.Unlock()
	s.notify()

	// Sending a message ends the local typing signal immediately.
	s.SendTypingStop(conversationID)

	if s.tr.Connected() {
		s.armAck(conversationID, clientID)
		err := s.tr.Send(&event.MessageSend{
			ConversationID: conversationID,
			ClientID:       clientID,
			Content:        content,
			Type:           typ,
		})
		if err != nil {
			s.log.Warn("socket send failed",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			s.failMessage(conversationID, clientID)
			return false
		}
		return true
	}

	go s.sendFallback(conversationID, clientID, content, typ)
	return true
}

// sendFallback resolves a send over REST while the socket is down. On
// success the optimistic entry is relabeled with the server's message; on
// failure it is marked failed. Errors never propagate — they become message
// state.
func (s *Store) sendFallback(conversationID, clientID, content string, typ model.MessageType) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	sent, err := s.api.SendMessage(ctx, conversationID, api.SendMessageRequest{
		Content:  content,
		Type:     typ,
		ClientID: clientID,
	})
	if err != nil {
		s.log.Warn("fallback send failed",
			zap.String("conversation_id", conversationID),
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		s.failMessage(conversationID, clientID)
		return
	}

	s.mu.Lock()
	t := s.timelineLocked(conversationID)
	m := t.confirm(clientID, sent.ID, sent.CreatedAt)
	if m == nil {
		// The optimistic entry is gone or the id already arrived some
		// other way; nothing to reconcile.
		s.mu.Unlock()
		return
	}
	conv := s.ensureConversationLocked(conversationID, sent.CreatedAt)
	s.touchLocked(conv, m)
	s.recomputeUnreadLocked()
	s.mu.Unlock()
	s.notify()
}

// failMessage marks a pending send failed. Failed sends are never silently
// retried; the caller resends explicitly, producing a fresh provisional
// identifier.
func (s *Store) failMessage(conversationID, clientID string) {
	s.clearAck(clientID)

	s.mu.Lock()
	t := s.timelineLocked(conversationID)
	m := t.fail(clientID)
	s.mu.Unlock()

	if m != nil {
		s.notify()
	}
}

// -----------------------------------------------------------------
// Acknowledgement timers
// -----------------------------------------------------------------

func (s *Store) armAck(conversationID, clientID string) {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.acks[clientID] = time.AfterFunc(s.opts.AckTimeout, func() {
		s.log.Warn("send acknowledgement timed out", zap.String("client_id", clientID))
		s.failMessage(conversationID, clientID)
	})
}

func (s *Store) clearAck(clientID string) {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	if timer, ok := s.acks[clientID]; ok {
		timer.Stop()
		delete(s.acks, clientID)
	}
}

func (s *Store) clearAllAcks() {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	for id, timer := range s.acks {
		timer.Stop()
		delete(s.acks, id)
	}
}

// -----------------------------------------------------------------
// Local typing signal
// -----------------------------------------------------------------

// SendTypingStart emits at most one typing-start per idle-to-typing
// transition, no matter how many keystrokes arrive, and arms the auto-stop
// timer. Repeated calls while typing only rewind the timer.
func (s *Store) SendTypingStart(conversationID string) {
	s.localMu.Lock()
	if timer, active := s.localTyping[conversationID]; active {
		timer.Reset(s.opts.TypingIdle)
		s.localMu.Unlock()
		return
	}
	s.localTyping[conversationID] = time.AfterFunc(s.opts.TypingIdle, func() {
		s.SendTypingStop(conversationID)
	})
	s.localMu.Unlock()

	if err := s.tr.Send(&event.TypingStart{ConversationID: conversationID}); err != nil {
		s.log.Debug("typing start not sent", zap.Error(err))
	}
}

// SendTypingStop ends the local typing signal: called on explicit stop, on
// message send, on the inactivity timer, and on teardown. A no-op while not
// typing.
func (s *Store) SendTypingStop(conversationID string) {
	s.localMu.Lock()
	timer, active := s.localTyping[conversationID]
	if !active {
		s.localMu.Unlock()
		return
	}
	timer.Stop()
	delete(s.localTyping, conversationID)
	s.localMu.Unlock()

	if err := s.tr.Send(&event.TypingStop{ConversationID: conversationID}); err != nil {
		s.log.Debug("typing stop not sent", zap.Error(err))
	}
}

// stopAllLocalTyping cancels every local typing timer; when send is true and
// the channel is still up, stop events go out so peers do not wait for
// expiry.
func (s *Store) stopAllLocalTyping(send bool) {
	s.localMu.Lock()
	ids := make([]string, 0, len(s.localTyping))
	for id, timer := range s.localTyping {
		timer.Stop()
		ids = append(ids, id)
		delete(s.localTyping, id)
	}
	s.localMu.Unlock()

	if !send || !s.tr.Connected() {
		return
	}
	for _, id := range ids {
		if err := s.tr.Send(&event.TypingStop{ConversationID: id}); err != nil && err != transport.ErrNotConnected {
			s.log.Debug("typing stop not sent", zap.Error(err))
		}
	}
}

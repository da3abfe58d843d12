package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/repo"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrNoParticipants       = errors.New("conversation needs at least two participants")
)

// ChatService owns the persistence side of the REST API. Socket fan-out for
// REST-created writes happens in the handler layer, which also holds the hub.
type ChatService interface {
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, int, error)
	History(ctx context.Context, userID, conversationID, before string) ([]model.Message, bool, error)
	CreateConversation(ctx context.Context, creatorID string, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error)
	SendMessage(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error)
	MarkRead(ctx context.Context, userID, conversationID string) ([]string, time.Time, error)
}

type chatService struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	users         repo.UserRepository
	presence      *PresenceService
	logger        *zap.Logger
}

func NewChatService(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	presence *PresenceService,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		presence:      presence,
		logger:        logger,
	}
}

// ListConversations returns the caller's conversations, most recently
// updated first, with per-conversation unread counts and last-known
// participant presence attached.
func (s *chatService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, int, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	totalUnread := 0
	for i := range convs {
		unread, err := s.messages.CountUnread(ctx, convs[i].ID, userID)
		if err != nil {
			s.logger.Warn("unread count failed",
				zap.String("conversation_id", convs[i].ID),
				zap.Error(err),
			)
			continue
		}
		convs[i].UnreadCount = int(unread)
		totalUnread += int(unread)

		s.attachPresence(ctx, &convs[i])
	}
	return convs, totalUnread, nil
}

func (s *chatService) attachPresence(ctx context.Context, conv *model.Conversation) {
	for i := range conv.Participants {
		p, err := s.presence.Get(ctx, conv.Participants[i].UserID)
		if err != nil {
			continue
		}
		conv.Participants[i].Online = p.Online()
		conv.Participants[i].LastSeen = p.LastSeen
	}
}

func (s *chatService) History(ctx context.Context, userID, conversationID, before string) ([]model.Message, bool, error) {
	if err := s.requireMember(ctx, userID, conversationID); err != nil {
		return nil, false, err
	}
	return s.messages.History(ctx, conversationID, before)
}

func (s *chatService) CreateConversation(ctx context.Context, creatorID string, participantIDs []string, kind model.ConversationKind, title string) (*model.Conversation, error) {
	// The creator is always a participant.
	ids := append([]string{creatorID}, Filter(participantIDs, func(id string) bool {
		return id != creatorID && id != ""
	})...)
	if len(ids) < 2 {
		return nil, ErrNoParticipants
	}

	if kind == "" {
		kind = model.ConversationDirect
		if len(ids) > 2 {
			kind = model.ConversationGroup
		}
	}

	participants := make([]model.Participant, 0, len(ids))
	for _, id := range ids {
		p := model.Participant{UserID: id, DisplayName: id, Role: model.RoleMember}
		if user, err := s.users.GetUser(ctx, id); err == nil && user != nil {
			p.DisplayName = user.DisplayName
			p.Avatar = user.Avatar
		}
		if id == creatorID && kind != model.ConversationDirect {
			p.Role = model.RoleAdmin
		}
		participants = append(participants, p)
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:           uuid.New().String(),
		Kind:         kind,
		Title:        title,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("kind", string(conv.Kind)),
		zap.Int("participants", len(conv.Participants)),
	)
	return conv, nil
}

// SendMessage persists a message sent over REST and returns the conversation
// alongside the stored message so the caller can fan both out.
func (s *chatService) SendMessage(ctx context.Context, userID, displayName, conversationID string, clientID, content string, msgType model.MessageType, replyTo string) (*model.Conversation, *model.Message, error) {
	if content == "" {
		return nil, nil, ErrEmptyContent
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, nil, ErrNotParticipant
	}

	if msgType == "" {
		msgType = model.MessageText
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ClientID:       clientID,
		ConversationID: conv.ID,
		SenderID:       userID,
		SenderName:     displayName,
		Content:        content,
		Type:           msgType,
		ReplyTo:        replyTo,
		CreatedAt:      time.Now().UTC(),
		Status:         model.StatusSent,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	if err := s.conversations.TouchLastMessage(ctx, conv.ID, msg.Preview()); err != nil {
		s.logger.Warn("failed to update conversation preview",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
	return conv, msg, nil
}

// MarkRead marks the whole conversation read for userID and returns the ids
// of the messages that transitioned, with the read timestamp.
func (s *chatService) MarkRead(ctx context.Context, userID, conversationID string) ([]string, time.Time, error) {
	if err := s.requireMember(ctx, userID, conversationID); err != nil {
		return nil, time.Time{}, err
	}

	now := time.Now().UTC()
	ids, err := s.messages.MarkConversationRead(ctx, conversationID, userID, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	return ids, now, nil
}

func (s *chatService) requireMember(ctx context.Context, userID, conversationID string) error {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

package model

import (
	"time"
)

// ConversationKind classifies a conversation.
type ConversationKind string

const (
	ConversationDirect     ConversationKind = "direct"
	ConversationGroup      ConversationKind = "group"
	ConversationMentorship ConversationKind = "mentorship"
	ConversationSupport    ConversationKind = "support"
)

// Conversation represents a chat conversation shared between the sync core
// and the backend. The server stores it as-is in MongoDB.
type Conversation struct {
	ID           string            `json:"id" bson:"_id,omitempty"`
	Kind         ConversationKind  `json:"kind" bson:"kind"`
	Title        string            `json:"title,omitempty" bson:"title,omitempty"`
	Participants []Participant     `json:"participants" bson:"participants"`
	LastMessage  *LastMessage      `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
	UnreadCount  int               `json:"unreadCount" bson:"unread_count"`
	CreatedAt    time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" bson:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Participant is a user within a conversation. Every conversation holds its
// own copy; presence updates are applied to each copy independently.
type Participant struct {
	UserID      string     `json:"userId" bson:"user_id"`
	DisplayName string     `json:"displayName" bson:"display_name"`
	Avatar      string     `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Role        string     `json:"role" bson:"role"`
	Online      bool       `json:"online" bson:"-"`
	LastSeen    *time.Time `json:"lastSeen,omitempty" bson:"-"`
	Typing      bool       `json:"typing" bson:"-"`
}

// Participant roles.
const (
	RoleMember    = "member"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// LastMessage stores the most recent message preview.
type LastMessage struct {
	MessageID  string    `json:"messageId" bson:"message_id"`
	Content    string    `json:"content" bson:"content"`
	SenderID   string    `json:"senderId" bson:"sender_id"`
	SenderName string    `json:"senderName" bson:"sender_name"`
	SentAt     time.Time `json:"sentAt" bson:"sent_at"`
}

// Participant returns the participant entry for userID, or nil.
func (c *Conversation) Participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant(userID) != nil
}

// ParticipantIDs returns the user IDs of all participants.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for i := range c.Participants {
		ids = append(ids, c.Participants[i].UserID)
	}
	return ids
}

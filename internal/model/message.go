package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the delivery state of a message. Statuses only ever
// advance along sending -> sent -> delivered -> read; failed is terminal and
// outside the chain.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// AtLeast reports whether s is at or beyond other on the status chain.
// Failed never ranks against the chain.
func (s MessageStatus) AtLeast(other MessageStatus) bool {
	if s == StatusFailed || other == StatusFailed {
		return false
	}
	return statusRank[s] >= statusRank[other]
}

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// TempIDPrefix marks client-generated provisional message identifiers.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh provisional message identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a provisional client identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Message is a chat message. ID is either a server-issued identifier or a
// provisional temp- identifier awaiting confirmation. ClientID carries the
// provisional identifier on server echoes of the sender's own messages so the
// receiver can reconcile instead of duplicating.
type Message struct {
	ID             string        `json:"id" bson:"_id,omitempty"`
	ClientID       string        `json:"clientId,omitempty" bson:"client_id,omitempty"`
	ConversationID string        `json:"conversationId" bson:"conversation_id"`
	SenderID       string        `json:"senderId" bson:"sender_id"`
	SenderName     string        `json:"senderName" bson:"sender_name"`
	Content        string        `json:"content" bson:"content"`
	Type           MessageType   `json:"type" bson:"type"`
	ReplyTo        string        `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" bson:"created_at"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty" bson:"read_at,omitempty"`
	Status         MessageStatus `json:"status" bson:"status"`
}

// Preview returns the conversation-list preview entry for m.
func (m *Message) Preview() *LastMessage {
	return &LastMessage{
		MessageID:  m.ID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SentAt:     m.CreatedAt,
	}
}

// Package event defines the socket event vocabulary shared by the sync core
// and the hub. Every frame on the wire is an Envelope whose Event tag selects
// one of a closed set of payload types; Decode rejects tags outside that set
// so a malformed or unknown frame can be logged and dropped instead of being
// misinterpreted.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

// Server-to-client event names. These are a wire contract; do not rename.
const (
	EventMessageNew       = "message:new"
	EventMessageSent      = "message:sent"
	EventMessageDelivered = "message:delivered"
	EventMessageRead      = "message:read"
	EventMessageTyping    = "message:typing"
	EventPresenceUpdate   = "presence:update"
)

// Client-to-server event names.
const (
	EventMessageSend         = "message:send"
	EventTypingStart         = "typing:start"
	EventTypingStop          = "typing:stop"
	EventPresenceSubscribe   = "presence:subscribe"
	EventPresenceUnsubscribe = "presence:unsubscribe"
)

// Envelope is the wire frame for every socket event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is implemented by every payload type in the vocabulary.
type Event interface {
	EventName() string
}

// -----------------------------------------------------------------
// Server -> client payloads
// -----------------------------------------------------------------

// MessageNew announces a message to every participant of its conversation,
// including an echo to the sender. On the echo, Message.ClientID carries the
// provisional identifier the sender used.
type MessageNew struct {
	Message model.Message `json:"message"`
}

// MessageSent acknowledges the sender's own send, mapping the provisional
// identifier to the server-issued one.
type MessageSent struct {
	ConversationID string    `json:"conversationId"`
	ClientID       string    `json:"clientId"`
	MessageID      string    `json:"messageId"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageDelivered reports that a recipient received the message.
type MessageDelivered struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	DeliveredTo    string    `json:"deliveredTo"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

// MessageRead reports a read receipt for a single message.
type MessageRead struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// MessageTyping reports a remote user's typing state change.
type MessageTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceUpdate reports an online/offline transition for a watched user.
type PresenceUpdate struct {
	UserID   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// -----------------------------------------------------------------
// Client -> server payloads
// -----------------------------------------------------------------

// MessageSend carries an outbound message with its provisional identifier.
type MessageSend struct {
	ConversationID string            `json:"conversationId"`
	ClientID       string            `json:"clientId"`
	Content        string            `json:"content"`
	Type           model.MessageType `json:"type"`
	ReplyTo        string            `json:"replyTo,omitempty"`
}

// TypingStart signals the local user began composing.
type TypingStart struct {
	ConversationID string `json:"conversationId"`
}

// TypingStop signals the local user stopped composing.
type TypingStop struct {
	ConversationID string `json:"conversationId"`
}

// PresenceSubscribe declares interest in presence updates for the given users.
type PresenceSubscribe struct {
	UserIDs []string `json:"userIds"`
}

// PresenceUnsubscribe withdraws interest in presence updates.
type PresenceUnsubscribe struct {
	UserIDs []string `json:"userIds"`
}

func (MessageNew) EventName() string          { return EventMessageNew }
func (MessageSent) EventName() string         { return EventMessageSent }
func (MessageDelivered) EventName() string    { return EventMessageDelivered }
func (MessageRead) EventName() string         { return EventMessageRead }
func (MessageTyping) EventName() string       { return EventMessageTyping }
func (PresenceUpdate) EventName() string      { return EventPresenceUpdate }
func (MessageSend) EventName() string         { return EventMessageSend }
func (TypingStart) EventName() string         { return EventTypingStart }
func (TypingStop) EventName() string          { return EventTypingStop }
func (PresenceSubscribe) EventName() string   { return EventPresenceSubscribe }
func (PresenceUnsubscribe) EventName() string { return EventPresenceUnsubscribe }

// ErrUnknownEvent is returned by Decode for tags outside the vocabulary.
type ErrUnknownEvent struct {
	Tag string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("event: unknown event tag %q", e.Tag)
}

// Encode wraps a payload in its wire envelope.
func Encode(ev Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("event: encode %s: %w", ev.EventName(), err)
	}
	return Envelope{Event: ev.EventName(), Data: data}, nil
}

// Decode parses an envelope into its typed payload. The switch is exhaustive
// over the vocabulary; anything else returns *ErrUnknownEvent.
func Decode(env Envelope) (Event, error) {
	var ev Event
	switch env.Event {
	case EventMessageNew:
		ev = &MessageNew{}
	case EventMessageSent:
		ev = &MessageSent{}
	case EventMessageDelivered:
		ev = &MessageDelivered{}
	case EventMessageRead:
		ev = &MessageRead{}
	case EventMessageTyping:
		ev = &MessageTyping{}
	case EventPresenceUpdate:
		ev = &PresenceUpdate{}
	case EventMessageSend:
		ev = &MessageSend{}
	case EventTypingStart:
		ev = &TypingStart{}
	case EventTypingStop:
		ev = &TypingStop{}
	case EventPresenceSubscribe:
		ev = &PresenceSubscribe{}
	case EventPresenceUnsubscribe:
		ev = &PresenceUnsubscribe{}
	default:
		return nil, &ErrUnknownEvent{Tag: env.Event}
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("event: decode %s payload: %w", env.Event, err)
		}
	}
	return ev, nil
}

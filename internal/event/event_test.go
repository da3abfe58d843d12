package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	payloads := []Event{
		&MessageNew{Message: model.Message{
			ID:             "m1",
			ClientID:       "temp-abc",
			ConversationID: "c1",
			SenderID:       "u2",
			Content:        "hello",
			Type:           model.MessageText,
			CreatedAt:      now,
			Status:         model.StatusSent,
		}},
		&MessageSent{ConversationID: "c1", ClientID: "temp-abc", MessageID: "m1", Timestamp: now},
		&MessageDelivered{ConversationID: "c1", MessageID: "m1", DeliveredTo: "u2", DeliveredAt: now},
		&MessageRead{ConversationID: "c1", MessageID: "m1", ReadBy: "u2", ReadAt: now},
		&MessageTyping{ConversationID: "c1", UserID: "u2", IsTyping: true},
		&PresenceUpdate{UserID: "u2", Status: model.PresenceOnline, LastSeen: &now},
		&MessageSend{ConversationID: "c1", ClientID: "temp-abc", Content: "hello", Type: model.MessageText},
		&TypingStart{ConversationID: "c1"},
		&TypingStop{ConversationID: "c1"},
		&PresenceSubscribe{UserIDs: []string{"u2", "u3"}},
		&PresenceUnsubscribe{UserIDs: []string{"u3"}},
	}

	for _, payload := range payloads {
		t.Run(payload.EventName(), func(t *testing.T) {
			env, err := Encode(payload)
			require.NoError(t, err)
			assert.Equal(t, payload.EventName(), env.Event)

			decoded, err := Decode(env)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestDecodeWireNames(t *testing.T) {
	// The event tags are a wire contract shared with the web clients.
	raw := `{"event":"message:typing","data":{"conversationId":"c1","userId":"u9","isTyping":true}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	ev, err := Decode(env)
	require.NoError(t, err)

	typing, ok := ev.(*MessageTyping)
	require.True(t, ok)
	assert.Equal(t, "c1", typing.ConversationID)
	assert.Equal(t, "u9", typing.UserID)
	assert.True(t, typing.IsTyping)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode(Envelope{Event: "call:offer", Data: json.RawMessage(`{}`)})
	require.Error(t, err)

	var unknown *ErrUnknownEvent
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "call:offer", unknown.Tag)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(Envelope{Event: EventMessageTyping, Data: json.RawMessage(`{"isTyping":"yes"}`)})
	require.Error(t, err)

	var unknown *ErrUnknownEvent
	assert.False(t, errors.As(err, &unknown), "a bad payload is not an unknown tag")
}

func TestDecodeEmptyData(t *testing.T) {
	ev, err := Decode(Envelope{Event: EventTypingStart})
	require.NoError(t, err)
	assert.Equal(t, &TypingStart{}, ev)
}

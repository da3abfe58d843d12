// Package transport provides the persistent bidirectional event channel the
// sync core runs on. The core only sees the Transport interface; the gorilla
// websocket implementation lives in websocket.go and tests substitute fakes.
package transport

import (
	"context"
	"errors"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
)

var (
	// ErrAuthFailed means the server rejected the token during the
	// handshake. Connection attempts are not retried on this error.
	ErrAuthFailed = errors.New("transport: authentication failed")

	// ErrNotConnected is returned by Send while the channel is down.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("transport: closed")
)

// ConnState is the lifecycle state of the event channel.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a connection lifecycle notification.
type Status struct {
	State ConnState
	Err   error
}

// Transport is a typed publish/subscribe surface over a persistent
// bidirectional event channel.
//
// Connect dials synchronously so authentication failures surface to the
// caller; after a successful dial the transport reconnects on its own with
// capped backoff until Disconnect. Events delivers decoded inbound events in
// arrival order. Status delivers lifecycle transitions (the connect /
// disconnect / error vocabulary of the wire protocol).
type Transport interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	Connected() bool
	Send(ev event.Event) error
	Events() <-chan event.Event
	Status() <-chan Status
}

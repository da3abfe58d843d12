package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/api"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/transport"
)

// fakeTransport is an in-memory Transport: outbound events are recorded,
// inbound events and status changes are injected by the test.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	sendErr    error
	sent       []event.Event

	events chan event.Event
	status chan transport.Status
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan event.Event, 64),
		status: make(chan transport.Status, 16),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) Events() <-chan event.Event { return f.events }

func (f *fakeTransport) Status() <-chan transport.Status { return f.status }

func (f *fakeTransport) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeTransport) sentEvents() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Event, len(f.sent))
	copy(out, f.sent)
	return out
}

// sentOfType filters the recorded outbound events by wire tag.
func (f *fakeTransport) sentOfType(name string) []event.Event {
	var out []event.Event
	for _, ev := range f.sentEvents() {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// storeEnv bundles a store with its fake transport and a stub REST backend.
type storeEnv struct {
	store *Store
	tr    *fakeTransport
	mux   *http.ServeMux
	srv   *httptest.Server
}

func newStoreEnv(t *testing.T, opts Options) *storeEnv {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{
		BaseURL: srv.URL,
		Token:   func() string { return "test-token" },
	})
	require.NoError(t, err)

	tr := newFakeTransport()
	store, err := NewStore(Config{
		UserID:      "u1",
		DisplayName: "User One",
		Transport:   tr,
		API:         client,
		Options:     opts,
	})
	require.NoError(t, err)

	return &storeEnv{store: store, tr: tr, mux: mux, srv: srv}
}

// connect brings the store online through the fake transport.
func (e *storeEnv) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, e.store.Connect(context.Background(), "test-token"))
	t.Cleanup(e.store.Disconnect)
}

// waitUntil polls the condition until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

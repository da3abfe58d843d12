package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
)

// changeRecorder collects typing change callbacks.
type changeRecorder struct {
	mu      sync.Mutex
	changes []string
}

func (r *changeRecorder) record(convID, userID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "stop"
	if typing {
		state = "start"
	}
	r.changes = append(r.changes, convID+"/"+userID+"/"+state)
}

func (r *changeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	copy(out, r.changes)
	return out
}

func TestTypingTrackerExpiry(t *testing.T) {
	rec := &changeRecorder{}
	tt := newTypingTracker(30*time.Millisecond, rec.record)
	defer tt.teardown()

	tt.start("c1", "u2")
	require.Equal(t, []string{"u2"}, tt.usersIn("c1"))

	waitUntil(t, func() bool { return len(tt.usersIn("c1")) == 0 })
	assert.Equal(t, []string{"c1/u2/start", "c1/u2/stop"}, rec.snapshot())
}

func TestTypingTrackerRefreshRewindsExpiry(t *testing.T) {
	rec := &changeRecorder{}
	tt := newTypingTracker(60*time.Millisecond, rec.record)
	defer tt.teardown()

	tt.start("c1", "u2")
	time.Sleep(40 * time.Millisecond)
	tt.start("c1", "u2") // refresh before expiry
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, []string{"u2"}, tt.usersIn("c1"), "refresh keeps the indicator alive")
	assert.Equal(t, []string{"c1/u2/start"}, rec.snapshot(), "a refresh is not a new start")
}

func TestTypingTrackerExplicitStop(t *testing.T) {
	rec := &changeRecorder{}
	tt := newTypingTracker(time.Minute, rec.record)
	defer tt.teardown()

	tt.start("c1", "u2")
	tt.start("c1", "u3")
	tt.stop("c1", "u2")

	assert.Equal(t, []string{"u3"}, tt.usersIn("c1"))

	tt.stop("c1", "u2") // double stop is a no-op
	assert.Len(t, rec.snapshot(), 3)
}

func TestTypingTrackerTeardownCancelsTimers(t *testing.T) {
	rec := &changeRecorder{}
	tt := newTypingTracker(20*time.Millisecond, rec.record)

	tt.start("c1", "u2")
	tt.teardown()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"c1/u2/start"}, rec.snapshot(), "no callback fires after teardown")
	assert.Empty(t, tt.usersIn("c1"))

	tt.start("c1", "u3")
	assert.Empty(t, tt.usersIn("c1"), "tracker is inert after teardown")
}

func TestLocalTypingDebounce(t *testing.T) {
	env := newStoreEnv(t, Options{TypingIdle: 40 * time.Millisecond})
	s := env.store
	env.tr.setConnected(true)

	// Many keystrokes, one start frame.
	s.SendTypingStart("c1")
	s.SendTypingStart("c1")
	s.SendTypingStart("c1")
	assert.Len(t, env.tr.sentOfType(event.EventTypingStart), 1)

	// Idle elapses, the stop goes out on its own.
	waitUntil(t, func() bool { return len(env.tr.sentOfType(event.EventTypingStop)) == 1 })

	// Typing again after the auto-stop is a fresh transition.
	s.SendTypingStart("c1")
	assert.Len(t, env.tr.sentOfType(event.EventTypingStart), 2)
}

func TestLocalTypingStopWithoutStartIsNoop(t *testing.T) {
	env := newStoreEnv(t, Options{})
	s := env.store
	env.tr.setConnected(true)

	s.SendTypingStop("c1")
	assert.Empty(t, env.tr.sentEvents())
}

func TestDisconnectSendsTypingStops(t *testing.T) {
	env := newStoreEnv(t, Options{TypingIdle: time.Minute})
	s := env.store
	env.connect(t)

	s.SendTypingStart("c1")
	s.SendTypingStart("c2")
	s.Disconnect()

	stops := env.tr.sentOfType(event.EventTypingStop)
	assert.Len(t, stops, 2, "teardown flushes a stop per conversation")
}

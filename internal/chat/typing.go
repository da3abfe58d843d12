package chat

import (
	"sync"
	"time"
)

// typingTracker derives the per-conversation set of currently-typing users
// from inbound typing events. Each (conversation, user) pair owns one entry
// in a timer-handle table; the entry expires after the configured window
// unless refreshed or explicitly stopped. teardown cancels every timer so no
// callback fires against a torn-down store.
type typingTracker struct {
	mu     sync.Mutex
	expiry time.Duration
	timers map[string]*time.Timer
	users  map[string]map[string]struct{}

	// onChange is invoked, outside the tracker lock, whenever a user
	// starts or stops typing in a conversation.
	onChange func(conversationID, userID string, typing bool)

	torndown bool
}

func newTypingTracker(expiry time.Duration, onChange func(string, string, bool)) *typingTracker {
	return &typingTracker{
		expiry:   expiry,
		timers:   make(map[string]*time.Timer),
		users:    make(map[string]map[string]struct{}),
		onChange: onChange,
	}
}

func typingKey(conversationID, userID string) string {
	return conversationID + ":" + userID
}

// start records the user as typing and arms (or rewinds) the expiry timer.
func (tt *typingTracker) start(conversationID, userID string) {
	tt.mu.Lock()
	if tt.torndown {
		tt.mu.Unlock()
		return
	}

	key := typingKey(conversationID, userID)
	if timer, ok := tt.timers[key]; ok {
		timer.Reset(tt.expiry)
		tt.mu.Unlock()
		return
	}

	tt.timers[key] = time.AfterFunc(tt.expiry, func() {
		tt.expire(conversationID, userID)
	})
	set, ok := tt.users[conversationID]
	if !ok {
		set = make(map[string]struct{})
		tt.users[conversationID] = set
	}
	set[userID] = struct{}{}
	tt.mu.Unlock()

	tt.onChange(conversationID, userID, true)
}

// stop removes the user on an explicit typing-stop event.
func (tt *typingTracker) stop(conversationID, userID string) {
	if tt.remove(conversationID, userID, true) {
		tt.onChange(conversationID, userID, false)
	}
}

// expire removes the user when the idle window elapses without a refresh.
func (tt *typingTracker) expire(conversationID, userID string) {
	if tt.remove(conversationID, userID, false) {
		tt.onChange(conversationID, userID, false)
	}
}

func (tt *typingTracker) remove(conversationID, userID string, cancelTimer bool) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.torndown {
		return false
	}

	key := typingKey(conversationID, userID)
	timer, ok := tt.timers[key]
	if !ok {
		return false
	}
	if cancelTimer {
		timer.Stop()
	}
	delete(tt.timers, key)

	if set, ok := tt.users[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(tt.users, conversationID)
		}
	}
	return true
}

// usersIn returns the users currently typing in the conversation.
func (tt *typingTracker) usersIn(conversationID string) []string {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	set := tt.users[conversationID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

// teardown cancels every outstanding timer and drops all state. The tracker
// is inert afterwards.
func (tt *typingTracker) teardown() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.torndown = true
	for key, timer := range tt.timers {
		timer.Stop()
		delete(tt.timers, key)
	}
	tt.users = make(map[string]map[string]struct{})
}

package chat

import (
	"sync"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

// presenceTracker keeps last-known presence for an explicitly declared watch
// set. Events for users outside the set are dropped to bound memory and
// event-processing cost. Unsubscribing shrinks the watch set but keeps the
// cached value; cached presence goes stale until re-subscribed.
type presenceTracker struct {
	mu      sync.Mutex
	watched map[string]struct{}
	cache   map[string]model.Presence
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{
		watched: make(map[string]struct{}),
		cache:   make(map[string]model.Presence),
	}
}

// subscribe adds userIDs to the watch set and returns the ones that were not
// already watched, so the caller only requests genuinely new subscriptions.
func (pt *presenceTracker) subscribe(userIDs []string) []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var added []string
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := pt.watched[id]; ok {
			continue
		}
		pt.watched[id] = struct{}{}
		added = append(added, id)
	}
	return added
}

// unsubscribe removes userIDs from the watch set (cache entries stay) and
// returns the ones that were actually watched.
func (pt *presenceTracker) unsubscribe(userIDs []string) []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var removed []string
	for _, id := range userIDs {
		if _, ok := pt.watched[id]; !ok {
			continue
		}
		delete(pt.watched, id)
		removed = append(removed, id)
	}
	return removed
}

// apply records an inbound presence event. It reports false for users
// outside the watch set; the event must then be ignored entirely.
func (pt *presenceTracker) apply(p model.Presence) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, ok := pt.watched[p.UserID]; !ok {
		return false
	}
	pt.cache[p.UserID] = p
	return true
}

// get returns the last-known presence for a user, watched or not.
func (pt *presenceTracker) get(userID string) (model.Presence, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.cache[userID]
	return p, ok
}

// watchedIDs returns the current watch set, for re-subscription after a
// reconnect.
func (pt *presenceTracker) watchedIDs() []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if len(pt.watched) == 0 {
		return nil
	}
	out := make([]string, 0, len(pt.watched))
	for id := range pt.watched {
		out = append(out, id)
	}
	return out
}

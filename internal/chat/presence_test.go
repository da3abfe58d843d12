package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

func TestPresenceTrackerSubscribeReturnsOnlyNew(t *testing.T) {
	pt := newPresenceTracker()

	added := pt.subscribe([]string{"u1", "u2", ""})
	assert.ElementsMatch(t, []string{"u1", "u2"}, added)

	added = pt.subscribe([]string{"u2", "u3"})
	assert.Equal(t, []string{"u3"}, added)
}

func TestPresenceTrackerApplyGatesOnWatchSet(t *testing.T) {
	pt := newPresenceTracker()
	pt.subscribe([]string{"u1"})

	assert.False(t, pt.apply(model.Presence{UserID: "u9", Status: model.PresenceOnline}))
	_, ok := pt.get("u9")
	assert.False(t, ok, "unwatched updates leave no trace")

	assert.True(t, pt.apply(model.Presence{UserID: "u1", Status: model.PresenceOnline}))
	p, ok := pt.get("u1")
	require.True(t, ok)
	assert.True(t, p.Online())
}

func TestPresenceTrackerUnsubscribeKeepsCache(t *testing.T) {
	pt := newPresenceTracker()
	pt.subscribe([]string{"u1"})

	now := time.Now()
	pt.apply(model.Presence{UserID: "u1", Status: model.PresenceOnline, LastSeen: &now})

	removed := pt.unsubscribe([]string{"u1", "u9"})
	assert.Equal(t, []string{"u1"}, removed)

	// Cached value survives, now stale.
	p, ok := pt.get("u1")
	require.True(t, ok)
	assert.True(t, p.Online())

	// But fresh updates no longer land.
	later := now.Add(time.Minute)
	assert.False(t, pt.apply(model.Presence{UserID: "u1", Status: model.PresenceOffline, LastSeen: &later}))
	p, _ = pt.get("u1")
	assert.True(t, p.Online())
}

func TestPresenceTrackerWatchedIDs(t *testing.T) {
	pt := newPresenceTracker()
	assert.Nil(t, pt.watchedIDs())

	pt.subscribe([]string{"u1", "u2"})
	pt.unsubscribe([]string{"u1"})
	assert.Equal(t, []string{"u2"}, pt.watchedIDs())
}

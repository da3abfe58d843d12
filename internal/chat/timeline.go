package chat

import (
	"time"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

// timeline is one conversation's ordered, duplicate-free message list.
//
// Order is receipt order, not timestamp order: an optimistic insert keeps its
// position even when the server-issued timestamp would sort it elsewhere.
// Identifiers are unique at all times; a provisional identifier is relabeled
// in place by its server identifier, never duplicated.
type timeline struct {
	msgs []*model.Message
	byID map[string]*model.Message
}

func newTimeline() *timeline {
	return &timeline{byID: make(map[string]*model.Message)}
}

func (t *timeline) len() int {
	return len(t.msgs)
}

func (t *timeline) has(id string) bool {
	_, ok := t.byID[id]
	return ok
}

func (t *timeline) get(id string) *model.Message {
	return t.byID[id]
}

// append adds a message at the end. It reports false, changing nothing, when
// the identifier is already present.
func (t *timeline) append(m *model.Message) bool {
	if m.ID == "" || t.has(m.ID) {
		return false
	}
	t.msgs = append(t.msgs, m)
	t.byID[m.ID] = m
	return true
}

// confirm relabels the provisional message clientID with its server identity
// in place and advances it to sent. It returns nil when there is nothing to
// confirm: the provisional entry is gone, or serverID already exists (a
// duplicate confirmation).
func (t *timeline) confirm(clientID, serverID string, ts time.Time) *model.Message {
	m, ok := t.byID[clientID]
	if !ok || t.has(serverID) {
		return nil
	}
	delete(t.byID, clientID)
	m.ID = serverID
	m.ClientID = clientID
	if !ts.IsZero() {
		m.CreatedAt = ts
	}
	t.byID[serverID] = m
	t.advanceLocked(m, model.StatusSent, ts)
	return m
}

// advance moves the message's status forward along the chain. Regressions
// are ignored: a read receipt arriving before a delivered receipt wins, and
// the late delivered receipt is absorbed.
func (t *timeline) advance(id string, status model.MessageStatus, at time.Time) *model.Message {
	m, ok := t.byID[id]
	if !ok {
		return nil
	}
	t.advanceLocked(m, status, at)
	return m
}

func (t *timeline) advanceLocked(m *model.Message, status model.MessageStatus, at time.Time) {
	if m.Status == model.StatusFailed || m.Status.AtLeast(status) {
		return
	}
	m.Status = status
	switch status {
	case model.StatusDelivered:
		if m.DeliveredAt == nil && !at.IsZero() {
			ts := at
			m.DeliveredAt = &ts
		}
	case model.StatusRead:
		if m.ReadAt == nil && !at.IsZero() {
			ts := at
			m.ReadAt = &ts
		}
	}
}

// fail marks a still-pending send as failed. Messages the server already
// acknowledged are left alone.
func (t *timeline) fail(id string) *model.Message {
	m, ok := t.byID[id]
	if !ok || m.Status != model.StatusSending {
		return nil
	}
	m.Status = model.StatusFailed
	return m
}

// merge inserts an older history page before the live tail, skipping
// identifiers already present. It returns the number of messages added.
func (t *timeline) merge(page []model.Message) int {
	fresh := make([]*model.Message, 0, len(page))
	for i := range page {
		m := page[i]
		if m.ID == "" || t.has(m.ID) {
			continue
		}
		fresh = append(fresh, &m)
		t.byID[m.ID] = &m
	}
	if len(fresh) == 0 {
		return 0
	}
	t.msgs = append(fresh, t.msgs...)
	return len(fresh)
}

// snapshot returns a copy of the list for external readers.
func (t *timeline) snapshot() []model.Message {
	out := make([]model.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

// last returns the newest message, or nil for an empty timeline.
func (t *timeline) last() *model.Message {
	if len(t.msgs) == 0 {
		return nil
	}
	return t.msgs[len(t.msgs)-1]
}

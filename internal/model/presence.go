package model

import "time"

// Presence statuses carried on presence:update events.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Presence is the last-known online state of a user.
type Presence struct {
	UserID   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// Online reports whether the record describes an online user.
func (p Presence) Online() bool {
	return p.Status == PresenceOnline
}

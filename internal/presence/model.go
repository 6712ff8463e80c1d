package presence

import "time"

// Record is one row of the presence ledger: the last known state of a
// display name in a room.
type Record struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Room     string    `json:"room"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsActive bool      `json:"is_active"`
}

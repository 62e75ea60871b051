package models

import "time"

// PresenceState is the last recorded online status for a tracked account.
// One row per account, not per subscriber.
type PresenceState struct {
	AccountID int64     `json:"account_id"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"last_seen"`
}

// PresenceTransition is emitted when a tracked account crosses the
// online/offline boundary. First-ever observations do not produce one.
type PresenceTransition struct {
	AccountID int64     `json:"account_id"`
	Online    bool      `json:"online"`
	At        time.Time `json:"at"`
}

package models

import "time"

// Subscription ties a chat subscriber to a tracked VK account.
type Subscription struct {
	SubscriberID int64     `json:"subscriber_id"`
	AccountID    int64     `json:"account_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// MonitoringFlags holds the six per-(subscriber, account) opt-in toggles.
// A new subscription starts with only Presence enabled.
type MonitoringFlags struct {
	Presence bool `json:"presence"`
	Friends  bool `json:"friends"`
	Groups   bool `json:"groups"`
	Posts    bool `json:"posts"`
	Likes    bool `json:"likes"`
	Comments bool `json:"comments"`
}

// DefaultFlags returns the flag set applied at subscribe time.
func DefaultFlags() MonitoringFlags {
	return MonitoringFlags{Presence: true}
}

// Get reports whether the flag for the given kind is set.
func (f MonitoringFlags) Get(kind Kind) bool {
	switch kind {
	case KindPresence:
		return f.Presence
	case KindFriends:
		return f.Friends
	case KindGroups:
		return f.Groups
	case KindPosts:
		return f.Posts
	case KindLikes:
		return f.Likes
	case KindComments:
		return f.Comments
	}
	return false
}

// Set updates the flag for the given kind, leaving the other five untouched.
func (f *MonitoringFlags) Set(kind Kind, value bool) {
	switch kind {
	case KindPresence:
		f.Presence = value
	case KindFriends:
		f.Friends = value
	case KindGroups:
		f.Groups = value
	case KindPosts:
		f.Posts = value
	case KindLikes:
		f.Likes = value
	case KindComments:
		f.Comments = value
	}
}

// AnyActivity reports whether at least one non-presence flag is enabled.
func (f MonitoringFlags) AnyActivity() bool {
	return f.Friends || f.Groups || f.Posts || f.Likes || f.Comments
}

// FlagUpdate is a partial flag mutation: only non-nil fields are applied.
type FlagUpdate struct {
	Presence *bool
	Friends  *bool
	Groups   *bool
	Posts    *bool
	Likes    *bool
	Comments *bool
}

// Apply merges the update into an existing flag set.
func (u FlagUpdate) Apply(f *MonitoringFlags) {
	if u.Presence != nil {
		f.Presence = *u.Presence
	}
	if u.Friends != nil {
		f.Friends = *u.Friends
	}
	if u.Groups != nil {
		f.Groups = *u.Groups
	}
	if u.Posts != nil {
		f.Posts = *u.Posts
	}
	if u.Likes != nil {
		f.Likes = *u.Likes
	}
	if u.Comments != nil {
		f.Comments = *u.Comments
	}
}

// SingleFlagUpdate builds an update that sets exactly one kind's flag.
func SingleFlagUpdate(kind Kind, value bool) FlagUpdate {
	v := value
	var u FlagUpdate
	switch kind {
	case KindPresence:
		u.Presence = &v
	case KindFriends:
		u.Friends = &v
	case KindGroups:
		u.Groups = &v
	case KindPosts:
		u.Posts = &v
	case KindLikes:
		u.Likes = &v
	case KindComments:
		u.Comments = &v
	}
	return u
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEvent is one detected novelty for a tracked account, ready to be
// fanned out to subscribers. Exactly one of the payload fields is set,
// matching Kind. The ID traces the event through dispatch logs.
type ActivityEvent struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`

	Transition *PresenceTransition `json:"transition,omitempty"`
	FriendID   int64               `json:"friend_id,omitempty"`
	GroupID    int64               `json:"group_id,omitempty"`
	Post       *Post               `json:"post,omitempty"`
	Like       *Like               `json:"like,omitempty"`
	Comment    *Comment            `json:"comment,omitempty"`
}

func newEvent(accountID int64, kind Kind, at time.Time) ActivityEvent {
	return ActivityEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      kind,
		At:        at,
	}
}

// NewPresenceEvent wraps a presence transition as a dispatchable event.
func NewPresenceEvent(t PresenceTransition) ActivityEvent {
	ev := newEvent(t.AccountID, KindPresence, t.At)
	ev.Transition = &t
	return ev
}

// NewFriendEvent records a newly observed friend of the account.
func NewFriendEvent(accountID, friendID int64, at time.Time) ActivityEvent {
	ev := newEvent(accountID, KindFriends, at)
	ev.FriendID = friendID
	return ev
}

// NewGroupEvent records a newly observed group membership.
func NewGroupEvent(accountID, groupID int64, at time.Time) ActivityEvent {
	ev := newEvent(accountID, KindGroups, at)
	ev.GroupID = groupID
	return ev
}

// NewPostEvent records a newly observed wall post.
func NewPostEvent(accountID int64, post Post, at time.Time) ActivityEvent {
	ev := newEvent(accountID, KindPosts, at)
	ev.Post = &post
	return ev
}

// NewLikeEvent records a newly observed like.
func NewLikeEvent(accountID int64, like Like, at time.Time) ActivityEvent {
	ev := newEvent(accountID, KindLikes, at)
	ev.Like = &like
	return ev
}

// NewCommentEvent records a newly observed comment.
func NewCommentEvent(accountID int64, comment Comment, at time.Time) ActivityEvent {
	ev := newEvent(accountID, KindComments, at)
	ev.Comment = &comment
	return ev
}

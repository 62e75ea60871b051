package models

// Kind identifies one monitored activity stream of a tracked account.
type Kind string

const (
	KindPresence Kind = "presence"
	KindFriends  Kind = "friends"
	KindGroups   Kind = "groups"
	KindPosts    Kind = "posts"
	KindLikes    Kind = "likes"
	KindComments Kind = "comments"
)

// AllKinds lists every kind in settings-menu order. The 1-based position in
// this slice is the index accepted by the /toggle command.
var AllKinds = []Kind{
	KindPresence,
	KindFriends,
	KindGroups,
	KindPosts,
	KindLikes,
	KindComments,
}

// ActivityKinds are the kinds handled by the activity loop; presence has its
// own loop and state table.
var ActivityKinds = []Kind{
	KindFriends,
	KindGroups,
	KindPosts,
	KindLikes,
	KindComments,
}

// KindByIndex maps a 1-based settings index to a kind. ok is false when the
// index is out of range.
func KindByIndex(idx int) (Kind, bool) {
	if idx < 1 || idx > len(AllKinds) {
		return "", false
	}
	return AllKinds[idx-1], true
}

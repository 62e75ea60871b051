package models

import (
	"fmt"
	"time"
)

// Post is one wall post as returned by the upstream API. Identified by
// (OwnerID, ID); the owner can differ from the tracked account for reposts.
type Post struct {
	ID      int64     `json:"id"`
	OwnerID int64     `json:"owner_id"`
	Date    time.Time `json:"date"`
	Text    string    `json:"text"`
}

// Key returns the stable identity of the post within a known-item set.
func (p Post) Key() string {
	return fmt.Sprintf("%d_%d", p.OwnerID, p.ID)
}

// LikeTarget categorizes the content a like was placed on.
type LikeTarget string

const (
	LikeTargetPost    LikeTarget = "post"
	LikeTargetPhoto   LikeTarget = "photo"
	LikeTargetVideo   LikeTarget = "video"
	LikeTargetComment LikeTarget = "comment"
)

// Like is one observed like by the tracked account.
type Like struct {
	Target  LikeTarget `json:"type"`
	OwnerID int64      `json:"owner_id"`
	ItemID  int64      `json:"item_id"`
	Date    time.Time  `json:"date"`
}

// Key returns the stable identity of the like within a known-item set.
func (l Like) Key() string {
	return fmt.Sprintf("%s_%d_%d", l.Target, l.OwnerID, l.ItemID)
}

// Comment is one comment left by the tracked account on a wall post.
type Comment struct {
	ID      int64     `json:"id"`
	PostID  int64     `json:"post_id"`
	OwnerID int64     `json:"owner_id"`
	Date    time.Time `json:"date"`
	Text    string    `json:"text"`
}

// Key returns the stable identity of the comment within a known-item set.
func (c Comment) Key() string {
	return fmt.Sprintf("%d_%d_%d", c.OwnerID, c.PostID, c.ID)
}

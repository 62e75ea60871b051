package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/vktrack/vktrack/internal/models"
	"github.com/vktrack/vktrack/internal/vk"
)

// ReconcilePresence compares a fetched presence sample against the stored
// state. The first observation of an account stores the sample and returns
// no transition; afterwards a flipped online flag stores the new state and
// returns the transition. Unchanged samples leave the store untouched.
func ReconcilePresence(ctx context.Context, store Store, sample vk.Presence) (*models.PresenceTransition, error) {
	prev, err := store.GetPresence(ctx, sample.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load presence for %d: %w", sample.AccountID, err)
	}

	state := models.PresenceState{
		AccountID: sample.AccountID,
		Online:    sample.Online,
		LastSeen:  sample.LastSeen,
	}

	if prev == nil {
		if err := store.SetPresence(ctx, state); err != nil {
			return nil, fmt.Errorf("seed presence for %d: %w", sample.AccountID, err)
		}
		return nil, nil
	}

	if prev.Online == sample.Online {
		return nil, nil
	}

	if err := store.SetPresence(ctx, state); err != nil {
		return nil, fmt.Errorf("store presence for %d: %w", sample.AccountID, err)
	}

	return &models.PresenceTransition{
		AccountID: sample.AccountID,
		Online:    sample.Online,
		At:        sample.LastSeen,
	}, nil
}

// reconcileKind fetches one activity kind, diffs it against the known set
// and wraps the novel items as dispatchable events.
func (t *Tracker) reconcileKind(ctx context.Context, accountID int64, kind models.Kind, now time.Time) ([]models.ActivityEvent, error) {
	switch kind {
	case models.KindFriends:
		friendIDs, err := t.upstream.FetchFriends(ctx, accountID)
		if err != nil {
			return nil, err
		}
		fresh, err := t.store.DiffAndStoreFriends(ctx, accountID, friendIDs, now)
		if err != nil {
			return nil, err
		}
		events := make([]models.ActivityEvent, 0, len(fresh))
		for _, id := range fresh {
			events = append(events, models.NewFriendEvent(accountID, id, now))
		}
		return events, nil

	case models.KindGroups:
		groupIDs, err := t.upstream.FetchGroups(ctx, accountID)
		if err != nil {
			return nil, err
		}
		fresh, err := t.store.DiffAndStoreGroups(ctx, accountID, groupIDs, now)
		if err != nil {
			return nil, err
		}
		events := make([]models.ActivityEvent, 0, len(fresh))
		for _, id := range fresh {
			events = append(events, models.NewGroupEvent(accountID, id, now))
		}
		return events, nil

	case models.KindPosts:
		posts, err := t.upstream.FetchWallPosts(ctx, accountID, t.cfg.PostFetchLimit)
		if err != nil {
			return nil, err
		}
		fresh, err := t.store.DiffAndStorePosts(ctx, accountID, posts, now)
		if err != nil {
			return nil, err
		}
		events := make([]models.ActivityEvent, 0, len(fresh))
		for _, post := range fresh {
			events = append(events, models.NewPostEvent(accountID, post, now))
		}
		return events, nil

	case models.KindLikes:
		likes, err := t.upstream.FetchLikes(ctx, accountID)
		if err != nil {
			return nil, err
		}
		fresh, err := t.store.DiffAndStoreLikes(ctx, accountID, likes, now)
		if err != nil {
			return nil, err
		}
		events := make([]models.ActivityEvent, 0, len(fresh))
		for _, like := range fresh {
			events = append(events, models.NewLikeEvent(accountID, like, now))
		}
		return events, nil

	case models.KindComments:
		comments, err := t.upstream.FetchComments(ctx, accountID)
		if err != nil {
			return nil, err
		}
		fresh, err := t.store.DiffAndStoreComments(ctx, accountID, comments, now)
		if err != nil {
			return nil, err
		}
		events := make([]models.ActivityEvent, 0, len(fresh))
		for _, comment := range fresh {
			events = append(events, models.NewCommentEvent(accountID, comment, now))
		}
		return events, nil
	}

	return nil, fmt.Errorf("unknown activity kind %q", kind)
}

// partition splits ids into chunks of at most size, preserving order.
func partition(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var batches [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

package tracker

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/vktrack/vktrack/internal/models"
)

func TestMemoryStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.AddSubscription(ctx, 100, 1)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if !created {
		t.Error("first AddSubscription should report created")
	}

	created, err = store.AddSubscription(ctx, 100, 1)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if created {
		t.Error("duplicate AddSubscription should not report created")
	}

	store.AddSubscription(ctx, 100, 2)
	store.AddSubscription(ctx, 200, 1)

	accounts, err := store.ListSubscriptions(ctx, 100)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if !reflect.DeepEqual(accounts, []int64{1, 2}) {
		t.Errorf("expected [1 2], got %v", accounts)
	}

	tracked, err := store.ListTrackedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListTrackedAccounts: %v", err)
	}
	if !reflect.DeepEqual(tracked, []int64{1, 2}) {
		t.Errorf("expected [1 2], got %v", tracked)
	}

	subscribers, err := store.ListSubscribers(ctx, 1)
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if !reflect.DeepEqual(subscribers, []int64{100, 200}) {
		t.Errorf("expected [100 200], got %v", subscribers)
	}
}

func TestMemoryStore_RemoveSubscriptionCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddSubscription(ctx, 100, 1)
	store.AddSubscription(ctx, 200, 1)
	store.InitPreferences(ctx, 100, 1)
	store.SetPresence(ctx, models.PresenceState{AccountID: 1, Online: true})

	removed, err := store.RemoveSubscription(ctx, 100, 1)
	if err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}
	if !removed {
		t.Error("expected removal of existing pair")
	}

	flags, _ := store.GetPreferences(ctx, 100, 1)
	if flags != nil {
		t.Error("preferences should be removed with the subscription")
	}

	// Another subscriber remains, presence stays.
	state, _ := store.GetPresence(ctx, 1)
	if state == nil {
		t.Fatal("presence should survive while the account has subscribers")
	}

	store.RemoveSubscription(ctx, 200, 1)
	state, _ = store.GetPresence(ctx, 1)
	if state != nil {
		t.Error("presence should be dropped with the last subscriber")
	}

	removed, _ = store.RemoveSubscription(ctx, 100, 1)
	if removed {
		t.Error("removing a missing pair should report false")
	}
}

func TestMemoryStore_Preferences(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddSubscription(ctx, 100, 1)
	store.InitPreferences(ctx, 100, 1)

	flags, err := store.GetPreferences(ctx, 100, 1)
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if flags == nil || !flags.Presence || flags.AnyActivity() {
		t.Errorf("defaults should be presence-only, got %+v", flags)
	}

	if err := store.SetPreferences(ctx, 100, 1, models.SingleFlagUpdate(models.KindPosts, true)); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}

	flags, _ = store.GetPreferences(ctx, 100, 1)
	if !flags.Posts || !flags.Presence {
		t.Errorf("partial update should keep untouched flags, got %+v", flags)
	}

	// Preferences are per pair, not per subscriber.
	store.AddSubscription(ctx, 200, 1)
	store.InitPreferences(ctx, 200, 1)
	other, _ := store.GetPreferences(ctx, 200, 1)
	if other.Posts {
		t.Error("another subscriber's flags must not be affected")
	}

	accounts, _ := store.ListAccountsWithActivityFlags(ctx)
	if !reflect.DeepEqual(accounts, []int64{1}) {
		t.Errorf("expected [1], got %v", accounts)
	}

	withPosts, _ := store.ListSubscribersWithFlag(ctx, 1, models.KindPosts)
	if !reflect.DeepEqual(withPosts, []int64{100}) {
		t.Errorf("expected [100], got %v", withPosts)
	}
}

func TestMemoryStore_DiffSeedsOnFirstContact(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	fresh, err := store.DiffAndStoreFriends(ctx, 1, []int64{10, 20, 30}, now)
	if err != nil {
		t.Fatalf("DiffAndStoreFriends: %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("first snapshot must seed silently, got %v", fresh)
	}
	if store.KnownCount(models.KindFriends, 1) != 3 {
		t.Errorf("seed should store all items, got %d", store.KnownCount(models.KindFriends, 1))
	}

	// An empty first snapshot still establishes the baseline.
	fresh, _ = store.DiffAndStoreGroups(ctx, 1, nil, now)
	if len(fresh) != 0 {
		t.Errorf("empty seed should return nothing, got %v", fresh)
	}
	fresh, _ = store.DiffAndStoreGroups(ctx, 1, []int64{5}, now)
	if !reflect.DeepEqual(fresh, []int64{5}) {
		t.Errorf("items after an empty baseline are new, got %v", fresh)
	}
}

func TestMemoryStore_DiffReportsOnlyNovelItems(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	store.DiffAndStoreFriends(ctx, 1, []int64{10, 20}, now)

	fresh, _ := store.DiffAndStoreFriends(ctx, 1, []int64{10, 20, 30, 40}, now)
	if !reflect.DeepEqual(fresh, []int64{30, 40}) {
		t.Errorf("expected [30 40] in input order, got %v", fresh)
	}

	// Idempotent: same snapshot again yields nothing.
	fresh, _ = store.DiffAndStoreFriends(ctx, 1, []int64{10, 20, 30, 40}, now)
	if len(fresh) != 0 {
		t.Errorf("repeated snapshot should be empty, got %v", fresh)
	}

	// Items disappearing from the snapshot are not reported and stay known.
	fresh, _ = store.DiffAndStoreFriends(ctx, 1, []int64{10}, now)
	if len(fresh) != 0 {
		t.Errorf("shrunk snapshot should be empty, got %v", fresh)
	}
	if store.KnownCount(models.KindFriends, 1) != 4 {
		t.Errorf("known set must retain departed items, got %d", store.KnownCount(models.KindFriends, 1))
	}
}

func TestMemoryStore_DiffDeduplicatesWithinSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	store.DiffAndStorePosts(ctx, 1, nil, now)

	posts := []models.Post{
		{ID: 7, OwnerID: 1, Text: "a"},
		{ID: 7, OwnerID: 1, Text: "a again"},
		{ID: 8, OwnerID: 1, Text: "b"},
	}
	fresh, err := store.DiffAndStorePosts(ctx, 1, posts, now)
	if err != nil {
		t.Fatalf("DiffAndStorePosts: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("duplicate keys count once, got %d items", len(fresh))
	}
	if fresh[0].ID != 7 || fresh[1].ID != 8 {
		t.Errorf("expected posts 7 and 8 in input order, got %v", fresh)
	}
}

func TestMemoryStore_DiffKindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	store.DiffAndStoreFriends(ctx, 1, []int64{10}, now)

	// Same numeric key in another kind is still first contact.
	fresh, _ := store.DiffAndStoreGroups(ctx, 1, []int64{10}, now)
	if len(fresh) != 0 {
		t.Errorf("groups baseline should seed independently, got %v", fresh)
	}

	// Same kind, another account: independent baseline.
	fresh, _ = store.DiffAndStoreFriends(ctx, 2, []int64{10}, now)
	if len(fresh) != 0 {
		t.Errorf("accounts seed independently, got %v", fresh)
	}
}

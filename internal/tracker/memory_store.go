package tracker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vktrack/vktrack/internal/models"
)

// MemoryStore implements Store with mutex-guarded maps. Used by unit tests
// and for running without a database.
type MemoryStore struct {
	mu sync.Mutex

	// subscriber -> account -> created
	subs map[int64]map[int64]time.Time
	// subscriber -> account -> flags
	prefs    map[int64]map[int64]models.MonitoringFlags
	presence map[int64]models.PresenceState
	// kind -> account -> item key -> first observed. A present inner map
	// means the baseline exists, even when empty.
	known map[models.Kind]map[int64]map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[int64]map[int64]time.Time),
		prefs:    make(map[int64]map[int64]models.MonitoringFlags),
		presence: make(map[int64]models.PresenceState),
		known:    make(map[models.Kind]map[int64]map[string]time.Time),
	}
}

func (s *MemoryStore) AddSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[subscriberID] == nil {
		s.subs[subscriberID] = make(map[int64]time.Time)
	}
	if _, ok := s.subs[subscriberID][accountID]; ok {
		return false, nil
	}
	s.subs[subscriberID][accountID] = time.Now()
	return true, nil
}

func (s *MemoryStore) RemoveSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[subscriberID][accountID]; !ok {
		return false, nil
	}
	delete(s.subs[subscriberID], accountID)
	delete(s.prefs[subscriberID], accountID)

	if !s.trackedLocked(accountID) {
		delete(s.presence, accountID)
	}
	return true, nil
}

func (s *MemoryStore) ListSubscriptions(ctx context.Context, subscriberID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.subs[subscriberID]))
	for accountID := range s.subs[subscriberID] {
		ids = append(ids, accountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListTrackedAccounts(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool)
	var ids []int64
	for _, accounts := range s.subs {
		for accountID := range accounts {
			if !seen[accountID] {
				seen[accountID] = true
				ids = append(ids, accountID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListSubscribers(ctx context.Context, accountID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for subscriberID, accounts := range s.subs {
		if _, ok := accounts[accountID]; ok {
			ids = append(ids, subscriberID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListSubscribersWithFlag(ctx context.Context, accountID int64, kind models.Kind) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for subscriberID, accounts := range s.prefs {
		flags, ok := accounts[accountID]
		if ok && flags.Get(kind) {
			ids = append(ids, subscriberID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) GetPresence(ctx context.Context, accountID int64) (*models.PresenceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.presence[accountID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *MemoryStore) SetPresence(ctx context.Context, state models.PresenceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence[state.AccountID] = state
	return nil
}

func (s *MemoryStore) InitPreferences(ctx context.Context, subscriberID, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs[subscriberID] == nil {
		s.prefs[subscriberID] = make(map[int64]models.MonitoringFlags)
	}
	if _, ok := s.prefs[subscriberID][accountID]; !ok {
		s.prefs[subscriberID][accountID] = models.DefaultFlags()
	}
	return nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, subscriberID, accountID int64) (*models.MonitoringFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags, ok := s.prefs[subscriberID][accountID]
	if !ok {
		return nil, nil
	}
	return &flags, nil
}

func (s *MemoryStore) SetPreferences(ctx context.Context, subscriberID, accountID int64, update models.FlagUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs[subscriberID] == nil {
		s.prefs[subscriberID] = make(map[int64]models.MonitoringFlags)
	}
	flags, ok := s.prefs[subscriberID][accountID]
	if !ok {
		flags = models.DefaultFlags()
	}
	update.Apply(&flags)
	s.prefs[subscriberID][accountID] = flags
	return nil
}

func (s *MemoryStore) ListAccountsWithActivityFlags(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool)
	var ids []int64
	for _, accounts := range s.prefs {
		for accountID, flags := range accounts {
			if flags.AnyActivity() && !seen[accountID] {
				seen[accountID] = true
				ids = append(ids, accountID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) DiffAndStoreFriends(ctx context.Context, accountID int64, friendIDs []int64, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return diffInto(s.knownSetLocked(models.KindFriends, accountID), friendIDs, func(id int64) string {
		return strconv.FormatInt(id, 10)
	}, now), nil
}

func (s *MemoryStore) DiffAndStoreGroups(ctx context.Context, accountID int64, groupIDs []int64, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return diffInto(s.knownSetLocked(models.KindGroups, accountID), groupIDs, func(id int64) string {
		return strconv.FormatInt(id, 10)
	}, now), nil
}

func (s *MemoryStore) DiffAndStorePosts(ctx context.Context, accountID int64, posts []models.Post, now time.Time) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return diffInto(s.knownSetLocked(models.KindPosts, accountID), posts, models.Post.Key, now), nil
}

func (s *MemoryStore) DiffAndStoreLikes(ctx context.Context, accountID int64, likes []models.Like, now time.Time) ([]models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return diffInto(s.knownSetLocked(models.KindLikes, accountID), likes, models.Like.Key, now), nil
}

func (s *MemoryStore) DiffAndStoreComments(ctx context.Context, accountID int64, comments []models.Comment, now time.Time) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return diffInto(s.knownSetLocked(models.KindComments, accountID), comments, models.Comment.Key, now), nil
}

// KnownCount reports the size of one known-item set. Test helper.
func (s *MemoryStore) KnownCount(kind models.Kind, accountID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.known[kind][accountID])
}

// knownSetLocked returns the known set for (kind, account) and whether it
// existed before the call. Callers hold s.mu.
func (s *MemoryStore) knownSetLocked(kind models.Kind, accountID int64) knownSet {
	if s.known[kind] == nil {
		s.known[kind] = make(map[int64]map[string]time.Time)
	}
	set, existed := s.known[kind][accountID]
	if !existed {
		set = make(map[string]time.Time)
		s.known[kind][accountID] = set
	}
	return knownSet{members: set, seeded: existed}
}

func (s *MemoryStore) trackedLocked(accountID int64) bool {
	for _, accounts := range s.subs {
		if _, ok := accounts[accountID]; ok {
			return true
		}
	}
	return false
}

type knownSet struct {
	members map[string]time.Time
	// seeded is false on first contact: the snapshot establishes the
	// baseline and nothing is reported as new.
	seeded bool
}

// diffInto is the single known-set diff routine shared by all five kinds,
// parameterized by the kind-specific key function. New members are inserted
// with the supplied timestamp and returned in input order; duplicate keys
// within one snapshot count once.
func diffInto[T any](set knownSet, items []T, keyOf func(T) string, now time.Time) []T {
	var fresh []T
	for _, item := range items {
		key := keyOf(item)
		if _, ok := set.members[key]; ok {
			continue
		}
		set.members[key] = now
		if set.seeded {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

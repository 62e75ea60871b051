package tracker

import (
	"context"
	"time"

	"github.com/vktrack/vktrack/internal/models"
)

// Store is the durable state behind the tracker: subscriptions, per-pair
// monitoring flags, last-known presence, and the per-kind known-item sets
// used for novelty detection. The poll loops and the command front end only
// touch state through this interface.
//
// Every DiffAndStore method follows the same contract: load the known set
// for the account, insert the fetched items that are not yet members
// (stamped with now), and return exactly those items in input order. When no
// known set exists yet for the account, the snapshot seeds the set and
// nothing is reported as new. Membership check plus insert is atomic per
// item with respect to concurrent reconciles of the same account.
type Store interface {
	// AddSubscription records a (subscriber, account) pair. Returns false
	// when the pair already existed.
	AddSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error)

	// RemoveSubscription deletes the pair and its monitoring flags. When the
	// account has no remaining subscribers its presence state is deleted
	// too. Returns false when the pair did not exist.
	RemoveSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error)

	// ListSubscriptions returns the account ids one subscriber follows.
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]int64, error)

	// ListTrackedAccounts returns every distinct account with at least one
	// subscriber.
	ListTrackedAccounts(ctx context.Context) ([]int64, error)

	// ListSubscribers returns every subscriber of the account.
	ListSubscribers(ctx context.Context, accountID int64) ([]int64, error)

	// ListSubscribersWithFlag returns the subscribers of the account that
	// enabled the given kind.
	ListSubscribersWithFlag(ctx context.Context, accountID int64, kind models.Kind) ([]int64, error)

	// GetPresence returns the stored presence state, or nil when the
	// account has never been observed.
	GetPresence(ctx context.Context, accountID int64) (*models.PresenceState, error)

	// SetPresence overwrites the stored presence state.
	SetPresence(ctx context.Context, state models.PresenceState) error

	// InitPreferences creates the default flag row (presence only) for the
	// pair if none exists yet.
	InitPreferences(ctx context.Context, subscriberID, accountID int64) error

	// GetPreferences returns the pair's flags, or nil when no row exists.
	GetPreferences(ctx context.Context, subscriberID, accountID int64) (*models.MonitoringFlags, error)

	// SetPreferences applies a partial flag update; unset fields keep their
	// stored value.
	SetPreferences(ctx context.Context, subscriberID, accountID int64, update models.FlagUpdate) error

	// ListAccountsWithActivityFlags returns accounts where at least one
	// subscriber enabled a non-presence kind.
	ListAccountsWithActivityFlags(ctx context.Context) ([]int64, error)

	DiffAndStoreFriends(ctx context.Context, accountID int64, friendIDs []int64, now time.Time) ([]int64, error)
	DiffAndStoreGroups(ctx context.Context, accountID int64, groupIDs []int64, now time.Time) ([]int64, error)
	DiffAndStorePosts(ctx context.Context, accountID int64, posts []models.Post, now time.Time) ([]models.Post, error)
	DiffAndStoreLikes(ctx context.Context, accountID int64, likes []models.Like, now time.Time) ([]models.Like, error)
	DiffAndStoreComments(ctx context.Context, accountID int64, comments []models.Comment, now time.Time) ([]models.Comment, error)
}

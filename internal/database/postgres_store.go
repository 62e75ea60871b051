package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/vktrack/vktrack/internal/models"
)

// PostgresStore is the durable tracker.Store implementation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AddSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (subscriber_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT (subscriber_id, account_id) DO NOTHING
	`, subscriberID, accountID)
	if err != nil {
		return false, fmt.Errorf("inserting subscription: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted > 0, nil
}

func (s *PostgresStore) RemoveSubscription(ctx context.Context, subscriberID, accountID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE subscriber_id = $1 AND account_id = $2
	`, subscriberID, accountID)
	if err != nil {
		return false, fmt.Errorf("deleting subscription: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM monitoring_settings
		WHERE subscriber_id = $1 AND account_id = $2
	`, subscriberID, accountID)
	if err != nil {
		return false, fmt.Errorf("deleting monitoring settings: %w", err)
	}

	// Presence state is per account; drop it once the last subscriber left.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM presence_states
		WHERE account_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM subscriptions WHERE account_id = $1
		  )
	`, accountID)
	if err != nil {
		return false, fmt.Errorf("pruning presence state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing unsubscribe: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, subscriberID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id FROM subscriptions
		WHERE subscriber_id = $1
		ORDER BY created_at, account_id
	`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *PostgresStore) ListTrackedAccounts(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT account_id FROM subscriptions ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tracked accounts: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *PostgresStore) ListSubscribers(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subscriber_id FROM subscriptions
		WHERE account_id = $1
		ORDER BY subscriber_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *PostgresStore) ListSubscribersWithFlag(ctx context.Context, accountID int64, kind models.Kind) ([]int64, error) {
	column, err := flagColumn(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.subscriber_id FROM monitoring_settings m
		WHERE m.account_id = $1 AND m.%s
		ORDER BY m.subscriber_id
	`, column), accountID)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers with flag: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *PostgresStore) GetPresence(ctx context.Context, accountID int64) (*models.PresenceState, error) {
	var state models.PresenceState
	var lastSeen sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, online, last_seen FROM presence_states
		WHERE account_id = $1
	`, accountID).Scan(&state.AccountID, &state.Online, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying presence state: %w", err)
	}

	if lastSeen.Valid {
		state.LastSeen = lastSeen.Time
	}
	return &state, nil
}

func (s *PostgresStore) SetPresence(ctx context.Context, state models.PresenceState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence_states (account_id, online, last_seen, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account_id)
		DO UPDATE SET online = EXCLUDED.online,
		              last_seen = EXCLUDED.last_seen,
		              updated_at = NOW()
	`, state.AccountID, state.Online, state.LastSeen)
	if err != nil {
		return fmt.Errorf("upserting presence state: %w", err)
	}
	return nil
}

func (s *PostgresStore) InitPreferences(ctx context.Context, subscriberID, accountID int64) error {
	defaults := models.DefaultFlags()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_settings
		(subscriber_id, account_id, presence_enabled, friends_enabled,
		 groups_enabled, posts_enabled, likes_enabled, comments_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subscriber_id, account_id) DO NOTHING
	`, subscriberID, accountID,
		defaults.Presence, defaults.Friends, defaults.Groups,
		defaults.Posts, defaults.Likes, defaults.Comments)
	if err != nil {
		return fmt.Errorf("inserting monitoring settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, subscriberID, accountID int64) (*models.MonitoringFlags, error) {
	var flags models.MonitoringFlags
	err := s.db.QueryRowContext(ctx, `
		SELECT presence_enabled, friends_enabled, groups_enabled,
		       posts_enabled, likes_enabled, comments_enabled
		FROM monitoring_settings
		WHERE subscriber_id = $1 AND account_id = $2
	`, subscriberID, accountID).Scan(
		&flags.Presence, &flags.Friends, &flags.Groups,
		&flags.Posts, &flags.Likes, &flags.Comments)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying monitoring settings: %w", err)
	}
	return &flags, nil
}

func (s *PostgresStore) SetPreferences(ctx context.Context, subscriberID, accountID int64, update models.FlagUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	flags := models.DefaultFlags()
	err = tx.QueryRowContext(ctx, `
		SELECT presence_enabled, friends_enabled, groups_enabled,
		       posts_enabled, likes_enabled, comments_enabled
		FROM monitoring_settings
		WHERE subscriber_id = $1 AND account_id = $2
		FOR UPDATE
	`, subscriberID, accountID).Scan(
		&flags.Presence, &flags.Friends, &flags.Groups,
		&flags.Posts, &flags.Likes, &flags.Comments)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("querying monitoring settings: %w", err)
	}

	update.Apply(&flags)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO monitoring_settings
		(subscriber_id, account_id, presence_enabled, friends_enabled,
		 groups_enabled, posts_enabled, likes_enabled, comments_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subscriber_id, account_id)
		DO UPDATE SET presence_enabled = EXCLUDED.presence_enabled,
		              friends_enabled = EXCLUDED.friends_enabled,
		              groups_enabled = EXCLUDED.groups_enabled,
		              posts_enabled = EXCLUDED.posts_enabled,
		              likes_enabled = EXCLUDED.likes_enabled,
		              comments_enabled = EXCLUDED.comments_enabled,
		              updated_at = NOW()
	`, subscriberID, accountID,
		flags.Presence, flags.Friends, flags.Groups,
		flags.Posts, flags.Likes, flags.Comments)
	if err != nil {
		return fmt.Errorf("upserting monitoring settings: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ListAccountsWithActivityFlags(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT account_id FROM monitoring_settings
		WHERE friends_enabled OR groups_enabled OR posts_enabled
		   OR likes_enabled OR comments_enabled
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying activity accounts: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *PostgresStore) DiffAndStoreFriends(ctx context.Context, accountID int64, friendIDs []int64, now time.Time) ([]int64, error) {
	return diffAndStore(ctx, s.db, accountID, models.KindFriends, friendIDs, formatID, now)
}

func (s *PostgresStore) DiffAndStoreGroups(ctx context.Context, accountID int64, groupIDs []int64, now time.Time) ([]int64, error) {
	return diffAndStore(ctx, s.db, accountID, models.KindGroups, groupIDs, formatID, now)
}

func (s *PostgresStore) DiffAndStorePosts(ctx context.Context, accountID int64, posts []models.Post, now time.Time) ([]models.Post, error) {
	return diffAndStore(ctx, s.db, accountID, models.KindPosts, posts, models.Post.Key, now)
}

func (s *PostgresStore) DiffAndStoreLikes(ctx context.Context, accountID int64, likes []models.Like, now time.Time) ([]models.Like, error) {
	return diffAndStore(ctx, s.db, accountID, models.KindLikes, likes, models.Like.Key, now)
}

func (s *PostgresStore) DiffAndStoreComments(ctx context.Context, accountID int64, comments []models.Comment, now time.Time) ([]models.Comment, error) {
	return diffAndStore(ctx, s.db, accountID, models.KindComments, comments, models.Comment.Key, now)
}

// diffAndStore inserts the items whose key is not yet in the account's known
// set and returns them in input order. A missing baseline row means first
// contact: the snapshot seeds the set and nothing is returned. The insert
// uses ON CONFLICT DO NOTHING, so concurrent reconciles of the same account
// report an item at most once.
func diffAndStore[T any](ctx context.Context, db *sql.DB, accountID int64, kind models.Kind, items []T, keyOf func(T) string, now time.Time) ([]T, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seeded bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM known_baselines WHERE account_id = $1 AND kind = $2
		)
	`, accountID, kind).Scan(&seeded)
	if err != nil {
		return nil, fmt.Errorf("checking baseline: %w", err)
	}

	if !seeded {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO known_baselines (account_id, kind, seeded_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id, kind) DO NOTHING
		`, accountID, kind, now)
		if err != nil {
			return nil, fmt.Errorf("recording baseline: %w", err)
		}
	}

	var fresh []T
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key := keyOf(item)
		if seen[key] {
			continue
		}
		seen[key] = true

		result, err := tx.ExecContext(ctx, `
			INSERT INTO known_items (account_id, kind, item_key, first_seen_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id, kind, item_key) DO NOTHING
		`, accountID, kind, key, now)
		if err != nil {
			return nil, fmt.Errorf("inserting known item: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if inserted > 0 && seeded {
			fresh = append(fresh, item)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing diff: %w", err)
	}
	return fresh, nil
}

func flagColumn(kind models.Kind) (string, error) {
	switch kind {
	case models.KindPresence:
		return "presence_enabled", nil
	case models.KindFriends:
		return "friends_enabled", nil
	case models.KindGroups:
		return "groups_enabled", nil
	case models.KindPosts:
		return "posts_enabled", nil
	case models.KindLikes:
		return "likes_enabled", nil
	case models.KindComments:
		return "comments_enabled", nil
	}
	return "", fmt.Errorf("unknown kind %q", kind)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Package storage persists subscriptions, the match cache, and notification
// history in SQLite. One writer connection, WAL journal, schema applied from
// the embedded migration file at open.
package storage

import (
	"context"
	"time"

	"matchbell/internal/model"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store is the persistence API used by the dispatcher, scheduler jobs, and
// the bot command surface.
type Store interface {
	// UpsertSubscription inserts or fully replaces the row for sub.UserID.
	UpsertSubscription(ctx context.Context, sub model.Subscription) error
	// GetSubscription returns (nil, nil) when the user has no row.
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
	// DeactivateSubscription flips active off but keeps the team list.
	DeactivateSubscription(ctx context.Context, userID string) error

	// UpsertMatches writes the batch by match id and reports how many rows
	// were new or changed. Matches are never deleted, only superseded.
	UpsertMatches(ctx context.Context, matches []model.Match) (int, error)
	// ListCachedMatches returns every cached match ordered by start time.
	ListCachedMatches(ctx context.Context) ([]model.Match, error)
	GetMatch(ctx context.Context, matchID string) (*model.Match, error)

	// SaveNotification inserts or replaces the record by notification id.
	SaveNotification(ctx context.Context, rec model.NotificationRecord) error
	// ListRecentNotifications returns up to limit records, newest first.
	ListRecentNotifications(ctx context.Context, limit int) ([]model.NotificationRecord, error)
	// ListRetryableNotifications pages through failed records whose last
	// attempt is at or after since and whose retry count is under the budget.
	ListRetryableNotifications(ctx context.Context, since time.Time, maxRetries, limit, offset int) ([]model.NotificationRecord, error)

	Close() error
}

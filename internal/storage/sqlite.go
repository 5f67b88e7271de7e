package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"matchbell/internal/model"
	"matchbell/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store, creating the database file and applying
// the schema when needed. ":memory:" is accepted for tests.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- subscriptions ----

func (s *sqliteStore) UpsertSubscription(ctx context.Context, sub model.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("storage: invalid subscription: %w", err)
	}
	teams, err := json.Marshal(sub.Teams)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, username, teams, active, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username=excluded.username, teams=excluded.teams,
		   active=excluded.active, updated_at=excluded.updated_at`,
		sub.UserID, nullStr(sub.Username), string(teams), sub.Active,
		formatTime(sub.CreatedAt),
		formatTime(sub.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, teams, active, created_at, updated_at
		 FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *sqliteStore) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, teams, active, created_at, updated_at
		 FROM subscriptions WHERE active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *sqliteStore) DeactivateSubscription(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET active = 0, updated_at = ? WHERE user_id = ?`,
		formatTime(time.Now()), userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(r rowScanner) (*model.Subscription, error) {
	var (
		sub       model.Subscription
		username  sql.NullString
		teams     string
		createdAt string
		updatedAt string
	)
	if err := r.Scan(&sub.UserID, &username, &teams, &sub.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sub.Username = username.String
	if err := json.Unmarshal([]byte(teams), &sub.Teams); err != nil {
		return nil, fmt.Errorf("storage: decode teams: %w", err)
	}
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	return &sub, nil
}

// ---- matches ----

func (s *sqliteStore) UpsertMatches(ctx context.Context, matches []model.Match) (int, error) {
	if len(matches) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	written := 0
	for _, m := range matches {
		if err := m.Validate(); err != nil {
			s.log.Warn("skipping invalid match", logx.String("match_id", m.ID), logx.Err(err))
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO matches(match_id, team1_id, team1_name, team1_region, team1_league,
			   team2_id, team2_name, team2_region, team2_league,
			   scheduled_time, tournament, format, status, stream_url, fetched_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(match_id) DO UPDATE SET
			   scheduled_time=excluded.scheduled_time, tournament=excluded.tournament,
			   format=excluded.format, status=excluded.status,
			   stream_url=excluded.stream_url, fetched_at=excluded.fetched_at`,
			m.ID,
			m.Team1.ID, m.Team1.Name, nullStr(m.Team1.Region), nullStr(m.Team1.League),
			m.Team2.ID, m.Team2.Name, nullStr(m.Team2.Region), nullStr(m.Team2.League),
			formatTime(m.ScheduledTime), m.Tournament,
			int(m.Format), string(m.Status), nullStr(m.StreamURL), now,
		)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (s *sqliteStore) ListCachedMatches(ctx context.Context) ([]model.Match, error) {
	rows, err := s.db.QueryContext(ctx, matchColumns+` ORDER BY scheduled_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *sqliteStore) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	row := s.db.QueryRowContext(ctx, matchColumns+` WHERE match_id = ?`, matchID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

const matchColumns = `SELECT match_id, team1_id, team1_name, team1_region, team1_league,
	team2_id, team2_name, team2_region, team2_league,
	scheduled_time, tournament, format, status, stream_url FROM matches`

func scanMatch(r rowScanner) (*model.Match, error) {
	var (
		m                        model.Match
		t1Region, t1League       sql.NullString
		t2Region, t2League       sql.NullString
		scheduledTime, streamURL sql.NullString
		format                   int
		status                   string
	)
	err := r.Scan(&m.ID,
		&m.Team1.ID, &m.Team1.Name, &t1Region, &t1League,
		&m.Team2.ID, &m.Team2.Name, &t2Region, &t2League,
		&scheduledTime, &m.Tournament, &format, &status, &streamURL)
	if err != nil {
		return nil, err
	}
	m.Team1.Region, m.Team1.League = t1Region.String, t1League.String
	m.Team2.Region, m.Team2.League = t2Region.String, t2League.String
	m.ScheduledTime = parseTime(scheduledTime.String)
	m.Format = model.BestOf(format)
	m.Status = model.MatchStatus(status)
	m.StreamURL = streamURL.String
	return &m, nil
}

// ---- notifications ----

func (s *sqliteStore) SaveNotification(ctx context.Context, rec model.NotificationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, user_id, match_id, message, status, retry_count, error_message, sent_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, retry_count=excluded.retry_count,
		   error_message=excluded.error_message, sent_at=excluded.sent_at`,
		rec.ID, rec.UserID, rec.MatchID, rec.Message, string(rec.Status),
		rec.RetryCount, nullStr(rec.ErrorMessage),
		formatTime(rec.SentAt),
	)
	return err
}

func (s *sqliteStore) ListRecentNotifications(ctx context.Context, limit int) ([]model.NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, notificationColumns+
		` ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *sqliteStore) ListRetryableNotifications(ctx context.Context, since time.Time, maxRetries, limit, offset int) ([]model.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, notificationColumns+
		` WHERE status = 'failed' AND retry_count < ? AND sent_at >= ?
		 ORDER BY sent_at LIMIT ? OFFSET ?`,
		maxRetries, formatTime(since), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

const notificationColumns = `SELECT id, user_id, match_id, message, status, retry_count, error_message, sent_at FROM notifications`

func collectNotifications(rows *sql.Rows) ([]model.NotificationRecord, error) {
	var recs []model.NotificationRecord
	for rows.Next() {
		var (
			rec    model.NotificationRecord
			status string
			errMsg sql.NullString
			sentAt string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MatchID, &rec.Message,
			&status, &rec.RetryCount, &errMsg, &sentAt); err != nil {
			return nil, err
		}
		rec.Status = model.NotificationStatus(status)
		rec.ErrorMessage = errMsg.String
		rec.SentAt = parseTime(sentAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ndmitriev/ratepulse/internal/domain"
	"github.com/ndmitriev/ratepulse/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS institutions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS institution_topics (
		id INTEGER PRIMARY KEY,
		institution_id INTEGER NOT NULL,
		topic_id INTEGER NOT NULL,
		UNIQUE(institution_id, topic_id),
		FOREIGN KEY (institution_id) REFERENCES institutions(id),
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		user_id INTEGER PRIMARY KEY,
		ready INTEGER NOT NULL DEFAULT 0,
		institution_id INTEGER,
		topic_id INTEGER,
		response_message_id INTEGER,
		request_message_id INTEGER,
		awaiting INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ratings (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		institution_id INTEGER NOT NULL,
		topic_id INTEGER NOT NULL,
		score INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES user_sessions(user_id),
		FOREIGN KEY (institution_id) REFERENCES institutions(id),
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);
	CREATE INDEX IF NOT EXISTS idx_ratings_topic ON ratings(institution_id, topic_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// ensureNamed is the compare-and-insert shared by both catalog tables:
// insert-if-absent is atomic, so concurrent first-use of one name by
// different users still yields a single row.
func (s *SQLiteStore) ensureNamed(ctx context.Context, table, name string) (int64, error) {
	insert := fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, table)
	if _, err := s.db.ExecContext(ctx, insert, name); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}

	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, table)
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select %s id: %w", table, err)
	}
	return id, nil
}

// EnsureInstitution inserts the named institution if absent and returns its id.
func (s *SQLiteStore) EnsureInstitution(ctx context.Context, name string) (int64, error) {
	return s.ensureNamed(ctx, "institutions", name)
}

// EnsureTopic inserts the named topic if absent and returns its id.
func (s *SQLiteStore) EnsureTopic(ctx context.Context, name string) (int64, error) {
	return s.ensureNamed(ctx, "topics", name)
}

// LinkTopicToInstitution records the association, ignoring an existing pair.
func (s *SQLiteStore) LinkTopicToInstitution(ctx context.Context, institutionID, topicID int64) error {
	query := `
		INSERT INTO institution_topics (institution_id, topic_id) VALUES (?, ?)
		ON CONFLICT(institution_id, topic_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, institutionID, topicID); err != nil {
		return fmt.Errorf("link topic %d to institution %d: %w", topicID, institutionID, err)
	}
	return nil
}

func (s *SQLiteStore) listEntries(ctx context.Context, query string, args ...any) ([]domain.RefEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close entry rows", "error", closeErr)
		}
	}()

	var entries []domain.RefEntry
	for rows.Next() {
		var e domain.RefEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ListInstitutions returns all institutions ordered by id.
func (s *SQLiteStore) ListInstitutions(ctx context.Context) ([]domain.RefEntry, error) {
	return s.listEntries(ctx, `SELECT id, name FROM institutions ORDER BY id`)
}

// ListTopicsForInstitution returns the topics linked to the institution.
func (s *SQLiteStore) ListTopicsForInstitution(ctx context.Context, institutionID int64) ([]domain.RefEntry, error) {
	query := `
		SELECT t.id, t.name
		FROM topics t
		JOIN institution_topics it ON it.topic_id = t.id
		WHERE it.institution_id = ?
		ORDER BY t.id`
	return s.listEntries(ctx, query, institutionID)
}

func (s *SQLiteStore) lookupName(ctx context.Context, table string, id int64) (string, error) {
	var name string
	query := fmt.Sprintf(`SELECT name FROM %s WHERE id = ?`, table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s id %d: %w", strings.TrimSuffix(table, "s"), id, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("select %s name: %w", table, err)
	}
	return name, nil
}

func (s *SQLiteStore) lookupID(ctx context.Context, table, name string) (int64, error) {
	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, table)
	err := s.db.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %q: %w", strings.TrimSuffix(table, "s"), name, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("select %s id: %w", table, err)
	}
	return id, nil
}

// InstitutionName resolves an institution id to its name.
func (s *SQLiteStore) InstitutionName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, "institutions", id)
}

// TopicName resolves a topic id to its name.
func (s *SQLiteStore) TopicName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, "topics", id)
}

// InstitutionID resolves an institution name to its id.
func (s *SQLiteStore) InstitutionID(ctx context.Context, name string) (int64, error) {
	return s.lookupID(ctx, "institutions", name)
}

// TopicID resolves a topic name to its id.
func (s *SQLiteStore) TopicID(ctx context.Context, name string) (int64, error) {
	return s.lookupID(ctx, "topics", name)
}

// EnsureSession creates the user's session row if absent.
func (s *SQLiteStore) EnsureSession(ctx context.Context, userID int64) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO user_sessions (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, userID, now, now); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// GetSession retrieves the user's session.
func (s *SQLiteStore) GetSession(ctx context.Context, userID int64) (*domain.UserSession, error) {
	query := `
		SELECT user_id, ready, institution_id, topic_id,
		       response_message_id, request_message_id, awaiting
		FROM user_sessions WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var session domain.UserSession
	var institutionID, topicID, responseID, requestID sql.NullInt64
	var awaiting int

	err := row.Scan(
		&session.UserID, &session.Ready, &institutionID, &topicID,
		&responseID, &requestID, &awaiting,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session for user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.InstitutionID = nullableID(institutionID)
	session.TopicID = nullableID(topicID)
	session.ResponseMessageID = nullableID(responseID)
	session.RequestMessageID = nullableID(requestID)
	session.Awaiting = domain.AwaitingMode(awaiting)

	return &session, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// UpdateSession applies a partial patch to the session row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, userID int64, patch domain.SessionPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}

	if patch.Ready != nil {
		sets = append(sets, "ready = ?")
		args = append(args, *patch.Ready)
	}
	if patch.InstitutionID != nil {
		sets = append(sets, "institution_id = ?")
		args = append(args, *patch.InstitutionID)
	}
	if patch.TopicID != nil {
		sets = append(sets, "topic_id = ?")
		args = append(args, *patch.TopicID)
	}

	query := `UPDATE user_sessions SET ` + strings.Join(sets, ", ") + ` WHERE user_id = ?`
	args = append(args, userID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session for user %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// SetAwaiting records an outstanding prompt in one write.
func (s *SQLiteStore) SetAwaiting(ctx context.Context, userID int64, mode domain.AwaitingMode, responseMessageID int64, requestMessageID *int64) error {
	var requestID any
	if requestMessageID != nil {
		requestID = *requestMessageID
	}

	query := `
		UPDATE user_sessions
		SET awaiting = ?, response_message_id = ?, request_message_id = ?, updated_at = ?
		WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, int(mode), responseMessageID, requestID, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("set awaiting: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session for user %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// ClearAwaiting resets the awaiting mode and both tracked message ids.
func (s *SQLiteStore) ClearAwaiting(ctx context.Context, userID int64) error {
	query := `
		UPDATE user_sessions
		SET awaiting = 0, response_message_id = NULL, request_message_id = NULL, updated_at = ?
		WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), userID); err != nil {
		return fmt.Errorf("clear awaiting: %w", err)
	}
	return nil
}

// ListSessionUserIDs returns every known user id.
func (s *SQLiteStore) ListSessionUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_sessions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query session user ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user id rows", "error", closeErr)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

// AppendRating stores one submission.
// Retries with exponential backoff on SQLite concurrency errors so a
// burst of submissions never drops a row.
func (s *SQLiteStore) AppendRating(ctx context.Context, userID, institutionID, topicID int64, score int, at time.Time) error {
	if err := domain.ValidateScore(score); err != nil {
		return err
	}

	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.appendRatingOnce(ctx, userID, institutionID, topicID, score, at)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("AppendRating hit SQLITE_BUSY, retrying",
				"user_id", userID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("append rating for user %d after %d attempts: %w", userID, maxRetries, err)
}

func (s *SQLiteStore) appendRatingOnce(ctx context.Context, userID, institutionID, topicID int64, score int, at time.Time) error {
	query := `
		INSERT INTO ratings (user_id, institution_id, topic_id, score, created_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, userID, institutionID, topicID, score, at.Unix()); err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

// CountRatings returns the total number of recorded ratings.
func (s *SQLiteStore) CountRatings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return count, nil
}

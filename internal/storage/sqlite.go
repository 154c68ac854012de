package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Submission journal
	CREATE TABLE IF NOT EXISTS submissions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		force_refresh INTEGER NOT NULL DEFAULT 0,
		contract TEXT NOT NULL,
		state TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	-- Normalized verification lists
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		contract TEXT NOT NULL,
		records TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_submissions_state ON submissions(state);
	CREATE INDEX IF NOT EXISTS idx_submissions_url ON submissions(url);
	CREATE INDEX IF NOT EXISTS idx_snapshots_contract ON snapshots(contract, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateSubmission journals a new submission
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *Submission) error {
	if sub.ID == "" {
		sub.ID = generateID()
	}
	if sub.CreatedAt == "" {
		sub.CreatedAt = now()
	}
	query := `
		INSERT INTO submissions (id, url, query, force_refresh, contract, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, sub.ID, sub.URL, sub.Query, sub.ForceRefresh, sub.Contract, sub.State, sub.CreatedAt)
	return err
}

// CompleteSubmission records the terminal state of a submission
func (s *SQLiteStore) CompleteSubmission(ctx context.Context, id string, o SubmissionOutcome) error {
	query := `
		UPDATE submissions SET state = ?, tx_hash = ?, attempts = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, o.State, o.TxHash, o.Attempts, o.Error, now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteSubmissionColumns = `seq, id, url, query, force_refresh, contract, state, tx_hash, attempts, error, created_at, completed_at`

func scanSQLiteSubmission(row interface{ Scan(...any) error }) (int64, *Submission, error) {
	var (
		seq       int64
		sub       Submission
		completed sql.NullString
	)
	err := row.Scan(&seq, &sub.ID, &sub.URL, &sub.Query, &sub.ForceRefresh, &sub.Contract, &sub.State,
		&sub.TxHash, &sub.Attempts, &sub.Error, &sub.CreatedAt, &completed)
	if err != nil {
		return 0, nil, err
	}
	sub.CompletedAt = completed.String
	return seq, &sub, nil
}

// GetSubmission retrieves a submission by id
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteSubmissionColumns+" FROM submissions WHERE id = ?", id)
	_, sub, err := scanSQLiteSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListSubmissions lists submissions newest first with cursor-based pagination
func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*PaginatedResult[Submission], error) {
	after, err := decodeCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var (
		where []string
		args  []any
	)
	if after > 0 {
		where = append(where, "seq < ?")
		args = append(args, after)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	if filter.URL != "" {
		where = append(where, "url = ?")
		args = append(args, filter.URL)
	}
	if filter.Contract != "" {
		where = append(where, "contract = ?")
		args = append(args, filter.Contract)
	}

	query := "SELECT " + sqliteSubmissionColumns + " FROM submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		subs []Submission
		seqs []int64
	)
	for rows.Next() {
		seq, sub, err := scanSQLiteSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(subs, seqs, limit), nil
}

// paginate trims the look-ahead row and derives the next cursor
func paginate(subs []Submission, seqs []int64, limit int) *PaginatedResult[Submission] {
	hasMore := len(subs) > limit
	if hasMore {
		subs = subs[:limit]
		seqs = seqs[:limit]
	}
	var next string
	if hasMore && len(seqs) > 0 {
		next = encodeCursor(seqs[len(seqs)-1])
	}
	if subs == nil {
		subs = []Submission{}
	}
	return &PaginatedResult[Submission]{Data: subs, HasMore: hasMore, NextCursor: next}
}

// SaveSnapshot stores a normalized verification list
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = generateID()
	}
	if snap.CreatedAt == "" {
		snap.CreatedAt = now()
	}
	query := `
		INSERT INTO snapshots (id, contract, records, record_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, snap.ID, snap.Contract, string(snap.Records), snap.RecordCount, snap.CreatedAt)
	return err
}

// LatestSnapshot returns the most recent snapshot for a contract
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, contract string) (*Snapshot, error) {
	query := `
		SELECT id, contract, records, record_count, created_at
		FROM snapshots
		WHERE contract = ?
		ORDER BY seq DESC
		LIMIT 1
	`
	var (
		snap    Snapshot
		records string
	)
	err := s.db.QueryRowContext(ctx, query, contract).Scan(&snap.ID, &snap.Contract, &records, &snap.RecordCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Records = []byte(records)
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots for a contract
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, contract string, keep int) (int64, error) {
	query := `
		DELETE FROM snapshots
		WHERE contract = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE contract = ? ORDER BY seq DESC LIMIT ?
		)
	`
	res, err := s.db.ExecContext(ctx, query, contract, contract, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, ?)", id, hash, name, now())
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", now(), ak.ID); err != nil {
		s.logger.Warn("updating api key last use", "id", ak.ID, "error", err)
	}
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.LastUsedAt = lastUsed.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL", now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

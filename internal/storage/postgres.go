package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Submission journal
	CREATE TABLE IF NOT EXISTS submissions (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		url TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		force_refresh BOOLEAN NOT NULL DEFAULT FALSE,
		contract TEXT NOT NULL,
		state TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);

	-- Normalized verification lists
	CREATE TABLE IF NOT EXISTS snapshots (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		contract TEXT NOT NULL,
		records JSONB NOT NULL,
		record_count INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_submissions_state ON submissions(state);
	CREATE INDEX IF NOT EXISTS idx_submissions_url ON submissions(url);
	CREATE INDEX IF NOT EXISTS idx_snapshots_contract ON snapshots(contract, seq DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return formatTime(t.Time)
}

// CreateSubmission journals a new submission
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *Submission) error {
	if sub.ID == "" {
		sub.ID = generateID()
	}
	query := `
		INSERT INTO submissions (id, url, query, force_refresh, contract, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	var created time.Time
	err := s.db.QueryRowContext(ctx, query, sub.ID, sub.URL, sub.Query, sub.ForceRefresh, sub.Contract, sub.State).Scan(&created)
	if err != nil {
		return err
	}
	sub.CreatedAt = formatTime(created)
	return nil
}

// CompleteSubmission records the terminal state of a submission
func (s *PostgresStore) CompleteSubmission(ctx context.Context, id string, o SubmissionOutcome) error {
	query := `
		UPDATE submissions SET state = $1, tx_hash = $2, attempts = $3, error = $4, completed_at = NOW()
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, query, o.State, o.TxHash, o.Attempts, o.Error, id)
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

const pgSubmissionColumns = `seq, id::text, url, query, force_refresh, contract, state, tx_hash, attempts, error, created_at, completed_at`

func scanPGSubmission(row interface{ Scan(...any) error }) (int64, *Submission, error) {
	var (
		seq       int64
		sub       Submission
		created   time.Time
		completed sql.NullTime
	)
	err := row.Scan(&seq, &sub.ID, &sub.URL, &sub.Query, &sub.ForceRefresh, &sub.Contract, &sub.State,
		&sub.TxHash, &sub.Attempts, &sub.Error, &created, &completed)
	if err != nil {
		return 0, nil, err
	}
	sub.CreatedAt = formatTime(created)
	sub.CompletedAt = formatNullTime(completed)
	return seq, &sub, nil
}

// GetSubmission retrieves a submission by id
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pgSubmissionColumns+" FROM submissions WHERE id::text = $1", id)
	_, sub, err := scanPGSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListSubmissions lists submissions newest first with cursor-based pagination
func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*PaginatedResult[Submission], error) {
	after, err := decodeCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if after > 0 {
		add("seq < $%d", after)
	}
	if filter.State != "" {
		add("state = $%d", filter.State)
	}
	if filter.URL != "" {
		add("url = $%d", filter.URL)
	}
	if filter.Contract != "" {
		add("contract = $%d", filter.Contract)
	}

	query := "SELECT " + pgSubmissionColumns + " FROM submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d", len(args))

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
		seq, sub, err := scanPGSubmission(rows)
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

// SaveSnapshot stores a normalized verification list
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = generateID()
	}
	query := `
		INSERT INTO snapshots (id, contract, records, record_count)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	var created time.Time
	err := s.db.QueryRowContext(ctx, query, snap.ID, snap.Contract, string(snap.Records), snap.RecordCount).Scan(&created)
	if err != nil {
		return err
	}
	snap.CreatedAt = formatTime(created)
	return nil
}

// LatestSnapshot returns the most recent snapshot for a contract
func (s *PostgresStore) LatestSnapshot(ctx context.Context, contract string) (*Snapshot, error) {
	query := `
		SELECT id::text, contract, records::text, record_count, created_at
		FROM snapshots
		WHERE contract = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	var (
		snap    Snapshot
		records string
		created time.Time
	)
	err := s.db.QueryRowContext(ctx, query, contract).Scan(&snap.ID, &snap.Contract, &records, &snap.RecordCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Records = []byte(records)
	snap.CreatedAt = formatTime(created)
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots for a contract
func (s *PostgresStore) PruneSnapshots(ctx context.Context, contract string, keep int) (int64, error) {
	query := `
		DELETE FROM snapshots
		WHERE contract = $1 AND seq NOT IN (
			SELECT seq FROM snapshots WHERE contract = $1 ORDER BY seq DESC LIMIT $2
		)
	`
	res, err := s.db.ExecContext(ctx, query, contract, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (key_hash, name) VALUES ($1, $2)", hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var (
		ak      APIKey
		created time.Time
	)
	err := s.db.QueryRowContext(ctx, "SELECT id::text, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = formatTime(created)
	// Update last used
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id::text = $1", ak.ID); err != nil {
		s.logger.Warn("updating api key last use", "id", ak.ID, "error", err)
	}
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id::text, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var (
			k        APIKey
			created  time.Time
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &created, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = formatTime(created)
		k.LastUsedAt = formatNullTime(lastUsed)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id::text = $1 AND revoked_at IS NULL", id)
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

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/urlverifier/internal/config"
)

// SubmissionStore journals verification submissions
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, s *Submission) error
	CompleteSubmission(ctx context.Context, id string, outcome SubmissionOutcome) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*PaginatedResult[Submission], error)
}

// SnapshotStore keeps normalized verification lists read from the chain
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	LatestSnapshot(ctx context.Context, contract string) (*Snapshot, error)
	PruneSnapshots(ctx context.Context, contract string, keep int) (int64, error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	SubmissionStore
	SnapshotStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Submission is a journaled process_url call
type Submission struct {
	ID           string
	URL          string
	Query        string
	ForceRefresh bool
	Contract     string
	State        string
	TxHash       string
	Attempts     int
	Error        string
	CreatedAt    string
	CompletedAt  string
}

// SubmissionOutcome is the terminal state of a submission
type SubmissionOutcome struct {
	State    string
	TxHash   string
	Attempts int
	Error    string
}

// SubmissionFilter contains filter options for listing submissions
type SubmissionFilter struct {
	State    string
	URL      string
	Contract string
}

// Snapshot is a normalized verification list, stored as JSON
type Snapshot struct {
	ID          string
	Contract    string
	Records     []byte
	RecordCount int
	CreatedAt   string
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// DefaultPageSize applies when a caller passes no limit
const DefaultPageSize = 20

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// timeLayout is fixed width so stored text timestamps sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000Z"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by either store. Unparsable input
// yields the zero time.
func ParseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

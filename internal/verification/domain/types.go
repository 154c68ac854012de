// Package domain contains the business logic for URL verification: the
// payload normalizer, the categorizer, and the service that ties them to
// the chain client and the submission journal.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel answers the contract stores when no usable answer exists.
const (
	answerError    = "Error"
	answerNotFound = "Not found"
)

// Record is one verification outcome as stored by the contract. Records are
// values; the categorizer only ever reorders copies.
type Record struct {
	URL           string `json:"url"`
	Timestamp     string `json:"timestamp,omitempty"`
	StatusCode    int    `json:"status_code"`
	IsAccessible  *bool  `json:"is_accessible,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Query         string `json:"query,omitempty"`
	ContentFound  *bool  `json:"content_found,omitempty"`
	ConciseAnswer string `json:"concise_answer,omitempty"`
	Analysis      string `json:"analysis,omitempty"`
}

// HasQuery reports whether a question was asked. An empty query is the
// contract's encoding of "no query".
func (r Record) HasQuery() bool {
	return r.Query != ""
}

// Accessible reports is_accessible, with a missing value read as false.
func (r Record) Accessible() bool {
	return r.IsAccessible != nil && *r.IsAccessible
}

// Found reports content_found, with a missing value read as false.
func (r Record) Found() bool {
	return r.ContentFound != nil && *r.ContentFound
}

// Answer returns the concise answer, or "" for the sentinel values.
func (r Record) Answer() string {
	switch r.ConciseAnswer {
	case answerError, answerNotFound:
		return ""
	}
	return r.ConciseAnswer
}

// Time returns the parsed timestamp, or the Unix epoch when it cannot be
// parsed.
func (r Record) Time() time.Time {
	return parseTimestamp(r.Timestamp)
}

// Key is the row key for the record at position i of a rendered list. It
// is not unique when the source holds duplicate (url, timestamp) pairs.
func (r Record) Key(i int) string {
	return fmt.Sprintf("%s-%s-%d", r.URL, r.Timestamp, i)
}

// Category is one of the three status buckets.
type Category string

const (
	CategoryAccessible   Category = "accessible"
	CategoryInaccessible Category = "inaccessible"
	CategoryNoContent    Category = "no-content"
)

// Categories lists the buckets in summary priority order.
var Categories = []Category{CategoryAccessible, CategoryInaccessible, CategoryNoContent}

// Filter selects records for the full history view.
type Filter string

const (
	FilterAll          Filter = "all"
	FilterAccessible   Filter = Filter(CategoryAccessible)
	FilterInaccessible Filter = Filter(CategoryInaccessible)
	FilterNoContent    Filter = Filter(CategoryNoContent)
)

// ParseFilter parses a filter name. The empty string means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterAccessible, FilterInaccessible, FilterNoContent:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want all, accessible, inaccessible or no-content)", ErrInvalidFilter, s)
	}
}

// ViewMode selects between the bounded summary and the full history.
type ViewMode string

const (
	ViewSummary ViewMode = "summary"
	ViewAll     ViewMode = "all"
)

// ParseViewMode parses a view mode name. The empty string means ViewSummary.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ViewSummary, nil
	case ViewSummary, ViewAll:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (want summary or all)", ErrInvalidViewMode, s)
	}
}

// ViewOptions are the presentation inputs to View.
type ViewOptions struct {
	Mode   ViewMode
	Filter Filter
	Search string
}

// Stats counts records per category. The three buckets always sum to Total.
type Stats struct {
	Total        int `json:"total"`
	Accessible   int `json:"accessible"`
	Inaccessible int `json:"inaccessible"`
	NoContent    int `json:"noContent"`
}

// ByCategory returns the counts keyed by category name.
func (s Stats) ByCategory() map[string]int {
	return map[string]int{
		string(CategoryAccessible):   s.Accessible,
		string(CategoryInaccessible): s.Inaccessible,
		string(CategoryNoContent):    s.NoContent,
	}
}

// Status describes the chain session.
type Status struct {
	Initialized        bool   `json:"initialized"`
	ContractConfigured bool   `json:"contractConfigured"`
	ContractAddress    string `json:"contractAddress,omitempty"`
	Account            string `json:"account,omitempty"`
	Network            string `json:"network"`
	ChainID            int    `json:"chainId"`
	ChainName          string `json:"chainName"`
	RPCURL             string `json:"rpcUrl"`
	Symbol             string `json:"symbol"`
}

// SubmitRequest is a request to verify a URL.
type SubmitRequest struct {
	URL          string `json:"url"`
	Query        string `json:"query,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

// SubmitResult acknowledges a confirmed submission.
type SubmitResult struct {
	SubmissionID string `json:"submissionId"`
	TxHash       string `json:"txHash"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
}

// Submission states recorded in the journal. A timed-out submission may
// still have been recorded on-chain.
const (
	StatePending   = "pending"
	StateConfirmed = "confirmed"
	StateTimedOut  = "timed_out"
	StateFailed    = "failed"
	StateRejected  = "rejected"
)

// Submission is a journaled submit attempt.
type Submission struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Query        string     `json:"query,omitempty"`
	ForceRefresh bool       `json:"forceRefresh"`
	State        string     `json:"state"`
	TxHash       string     `json:"txHash,omitempty"`
	Attempts     int        `json:"attempts"`
	Error        string     `json:"error,omitempty"`
	Contract     string     `json:"contract"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// SubmissionFilter narrows the journal listing.
type SubmissionFilter struct {
	State string
	URL   string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// SubmissionList is a page of journal entries.
type SubmissionList struct {
	Submissions []Submission
	HasMore     bool
	NextCursor  string
}

// ViewRequest selects the records a caller wants to see.
type ViewRequest struct {
	ViewOptions
	// Offline serves the last stored snapshot without contacting the chain.
	Offline bool
	// HighlightURL marks the first record with this URL.
	HighlightURL string
}

// Source names where a view's records came from.
type Source string

const (
	SourceChain    Source = "chain"
	SourceCache    Source = "cache"
	SourceSnapshot Source = "snapshot"
)

// ViewResult is a rendered view over the canonical sequence.
type ViewResult struct {
	Records []Record
	Stats   Stats
	Source  Source
	// Highlight is the index into Records of HighlightURL, or -1.
	Highlight int
	// HighlightKey is the row key of the highlighted record.
	HighlightKey string
	FetchedAt    time.Time
}

// Snapshot is a stored canonical sequence.
type Snapshot struct {
	ID        string
	Contract  string
	Records   []Record
	CreatedAt time.Time
}

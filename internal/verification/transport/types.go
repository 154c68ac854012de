// Package transport provides HTTP request/response types for the verification domain.
package transport

import (
	"time"

	"github.com/pendergraft/urlverifier/internal/verification/domain"
)

// SubmitRequest is the HTTP request body for submitting a URL.
type SubmitRequest struct {
	URL          string `json:"url"`
	Query        string `json:"query,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

// ToDomain converts SubmitRequest to domain.SubmitRequest.
func (r SubmitRequest) ToDomain() domain.SubmitRequest {
	return domain.SubmitRequest{
		URL:          r.URL,
		Query:        r.Query,
		ForceRefresh: r.ForceRefresh,
	}
}

// SubmitResponse acknowledges a confirmed submission.
type SubmitResponse struct {
	domain.SubmitResult
	Message string `json:"message"`
}

// ViewResponse is a rendered verification view.
type ViewResponse struct {
	Data      []domain.Record `json:"data"`
	Stats     domain.Stats    `json:"stats"`
	View      domain.ViewMode `json:"view"`
	Filter    domain.Filter   `json:"filter"`
	Search    string          `json:"search,omitempty"`
	Source    domain.Source   `json:"source"`
	Highlight *Highlight      `json:"highlight,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Highlight points at the record matching the requested url.
type Highlight struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
}

// StatsResponse is the per-category summary.
type StatsResponse struct {
	domain.Stats
	Source    domain.Source `json:"source"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

// SubmissionListResponse is a page of journaled submissions.
type SubmissionListResponse struct {
	Data       []domain.Submission `json:"data"`
	Pagination Pagination          `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// Package client provides a Go client for the urlverifier HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout outlasts a full confirmation wait (24 checks, 5s apart).
const DefaultTimeout = 150 * time.Second

// Client is a urlverifier API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new client. apiKey may be empty when the server runs
// without authentication.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Health is the liveness response
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Status describes the server's chain session
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

// Record is one verification as stored by the contract
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

// Stats counts records per category
type Stats struct {
	Total        int `json:"total"`
	Accessible   int `json:"accessible"`
	Inaccessible int `json:"inaccessible"`
	NoContent    int `json:"noContent"`
}

// Highlight points at the record matching a requested url
type Highlight struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
}

// View is a rendered verification list
type View struct {
	Data      []Record   `json:"data"`
	Stats     Stats      `json:"stats"`
	View      string     `json:"view"`
	Filter    string     `json:"filter"`
	Search    string     `json:"search,omitempty"`
	Source    string     `json:"source"`
	Highlight *Highlight `json:"highlight,omitempty"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// ViewOptions selects a view. Zero values mean the summary view.
type ViewOptions struct {
	View    string // "summary" or "all"
	Filter  string // "all", "accessible", "inaccessible", "no-content"
	Search  string
	URL     string // highlight the first record with this url
	Offline bool   // serve the last stored snapshot
}

// StatsResponse is the per-category summary
type StatsResponse struct {
	Stats
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// SubmitRequest asks the server to verify a URL
type SubmitRequest struct {
	URL          string `json:"url"`
	Query        string `json:"query,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

// SubmitResponse acknowledges a confirmed submission
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	TxHash       string `json:"txHash"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	Message      string `json:"message"`
}

// Submission is a journaled submission
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

// SubmissionList is a page of submissions
type SubmissionList struct {
	Data       []Submission `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// SubmissionQuery filters and pages the submission journal
type SubmissionQuery struct {
	State  string
	URL    string
	Limit  int
	Cursor string
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Health checks server liveness
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuthInfo describes how the server saw the request's credentials
type AuthInfo struct {
	Auth  string `json:"auth"`
	KeyID string `json:"keyId,omitempty"`
	Name  string `json:"name,omitempty"`
}

// CheckAuth confirms the configured API key without side effects
func (c *Client) CheckAuth(ctx context.Context) (*AuthInfo, error) {
	var resp AuthInfo
	if err := c.get(ctx, "/api/v1/auth/check", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports the server's chain session
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.get(ctx, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Initialize (re)creates the server's chain session
func (c *Client) Initialize(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.post(ctx, "/api/v1/initialize", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit verifies a URL and blocks until the transaction is accepted
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.post(ctx, "/api/v1/verifications", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verifications fetches a rendered view
func (c *Client) Verifications(ctx context.Context, opts ViewOptions) (*View, error) {
	q := url.Values{}
	setIf(q, "view", opts.View)
	setIf(q, "filter", opts.Filter)
	setIf(q, "q", opts.Search)
	setIf(q, "url", opts.URL)
	if opts.Offline {
		q.Set("offline", "true")
	}

	var resp View
	if err := c.get(ctx, "/api/v1/verifications", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches the per-category counts
func (c *Client) Stats(ctx context.Context, offline bool) (*StatsResponse, error) {
	q := url.Values{}
	if offline {
		q.Set("offline", "true")
	}
	var resp StatsResponse
	if err := c.get(ctx, "/api/v1/verifications/stats", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submissions lists the submission journal, newest first
func (c *Client) Submissions(ctx context.Context, query SubmissionQuery) (*SubmissionList, error) {
	q := url.Values{}
	setIf(q, "state", query.State)
	setIf(q, "url", query.URL)
	setIf(q, "cursor", query.Cursor)
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}

	var resp SubmissionList
	if err := c.get(ctx, "/api/v1/submissions", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submission gets one journaled submission
func (c *Client) Submission(ctx context.Context, id string) (*Submission, error) {
	var resp Submission
	if err := c.get(ctx, "/api/v1/submissions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message:    resp.Status,
		}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}

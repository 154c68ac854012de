package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/urlverifier/internal/genlayer"
	"github.com/pendergraft/urlverifier/internal/storage"
	"github.com/pendergraft/urlverifier/internal/verification/domain"
)

type mockService struct {
	initErr     error
	submitErr   error
	viewErr     error
	records     []domain.Record
	lastSubmit  domain.SubmitRequest
	lastView    domain.ViewRequest
	lastFilter  domain.SubmissionFilter
	lastPage    domain.PaginationParams
	submissions map[string]*domain.Submission
}

func newMockService() *mockService {
	return &mockService{submissions: make(map[string]*domain.Submission)}
}

func (m *mockService) Initialize(ctx context.Context) (*domain.Status, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	return &domain.Status{Initialized: true, ContractConfigured: true, ContractAddress: "0xabc"}, nil
}

func (m *mockService) Status(ctx context.Context) *domain.Status {
	return &domain.Status{Network: "studionet", ChainID: 61999}
}

func (m *mockService) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	m.lastSubmit = req
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &domain.SubmitResult{SubmissionID: "sub-1", TxHash: "0xfeed", Status: "ACCEPTED", Attempts: 2}, nil
}

func (m *mockService) View(ctx context.Context, req domain.ViewRequest) (*domain.ViewResult, error) {
	m.lastView = req
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	records := domain.View(m.records, req.ViewOptions)
	hl := domain.Locate(records, req.HighlightURL)
	key := ""
	if hl >= 0 {
		key = records[hl].Key(hl)
	}
	return &domain.ViewResult{
		Records:      records,
		Stats:        domain.Count(m.records),
		Source:       domain.SourceChain,
		Highlight:    hl,
		HighlightKey: key,
		FetchedAt:    time.Unix(0, 0).UTC(),
	}, nil
}

func (m *mockService) Submissions(ctx context.Context, filter domain.SubmissionFilter, pagination domain.PaginationParams) (*domain.SubmissionList, error) {
	m.lastFilter = filter
	m.lastPage = pagination
	if pagination.Cursor == "bogus" {
		return nil, storage.ErrInvalidCursor
	}
	subs := []domain.Submission{}
	for _, s := range m.submissions {
		subs = append(subs, *s)
	}
	return &domain.SubmissionList{Submissions: subs}, nil
}

func (m *mockService) Submission(ctx context.Context, id string) (*domain.Submission, error) {
	if s, ok := m.submissions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSubmissionNotFound
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterReadRoutes(r)
		h.RegisterWriteRoutes(r)
	})
	return r
}

func do(t *testing.T, router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandler_Status(t *testing.T) {
	router := setupRouter(newMockService())

	rec := do(t, router, http.MethodGet, "/api/v1/status", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status domain.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "studionet", status.Network)
	assert.Equal(t, 61999, status.ChainID)
}

func TestHandler_Initialize(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router := setupRouter(newMockService())
		rec := do(t, router, http.MethodPost, "/api/v1/initialize", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"initialized":true`)
	})

	t.Run("contract not configured", func(t *testing.T) {
		svc := newMockService()
		svc.initErr = genlayer.ErrContractNotConfigured
		rec := do(t, setupRouter(svc), http.MethodPost, "/api/v1/initialize", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "SETUP_REQUIRED", errorCode(t, rec))
	})

	t.Run("node unreachable", func(t *testing.T) {
		svc := newMockService()
		svc.initErr = &genlayer.PhaseError{Phase: genlayer.PhaseInitialize, Err: errors.New("dial tcp: refused")}
		rec := do(t, setupRouter(svc), http.MethodPost, "/api/v1/initialize", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "INITIALIZATION_FAILED", errorCode(t, rec))
		assert.Contains(t, rec.Body.String(), "dial tcp: refused")
	})
}

func TestHandler_Submit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := newMockService()
		body, _ := json.Marshal(SubmitRequest{URL: "https://example.com", Query: "what?", ForceRefresh: true})

		rec := do(t, setupRouter(svc), http.MethodPost, "/api/v1/verifications", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.SubmitRequest{URL: "https://example.com", Query: "what?", ForceRefresh: true}, svc.lastSubmit)

		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "sub-1", resp.SubmissionID)
		assert.Equal(t, "0xfeed", resp.TxHash)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := do(t, setupRouter(newMockService()), http.MethodPost, "/api/v1/verifications", []byte("{"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty url", genlayer.ErrInvalidURL, http.StatusBadRequest, "INVALID_REQUEST"},
		{"not initialized", genlayer.ErrNotInitialized, http.StatusConflict, "NOT_INITIALIZED"},
		{"no contract", genlayer.ErrContractNotConfigured, http.StatusServiceUnavailable, "SETUP_REQUIRED"},
		{
			"timeout",
			&genlayer.PhaseError{Phase: genlayer.PhaseSubmit, TxHash: "0x1", Err: fmt.Errorf("tx 0x1: %w", genlayer.ErrConfirmationTimeout)},
			http.StatusGatewayTimeout, "CONFIRMATION_TIMEOUT",
		},
		{
			"rpc failure",
			&genlayer.PhaseError{Phase: genlayer.PhaseSubmit, Err: errors.New("insufficient funds")},
			http.StatusBadGateway, "SUBMISSION_FAILED",
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.submitErr = tt.err
			body, _ := json.Marshal(SubmitRequest{URL: "https://example.com"})

			rec := do(t, setupRouter(svc), http.MethodPost, "/api/v1/verifications", body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func testRecords() []domain.Record {
	yes, no := true, false
	return []domain.Record{
		{URL: "https://a.example", Timestamp: "2024-01-03T00:00:00Z", IsAccessible: &yes, ContentFound: &yes, ConciseAnswer: "yes"},
		{URL: "https://b.example", Timestamp: "2024-01-02T00:00:00Z", IsAccessible: &no},
		{URL: "https://c.example", Timestamp: "2024-01-01T00:00:00Z", IsAccessible: &yes, Query: "q", ContentFound: &no},
	}
}

func TestHandler_View(t *testing.T) {
	t.Run("defaults to summary", func(t *testing.T) {
		svc := newMockService()
		svc.records = testRecords()

		rec := do(t, setupRouter(svc), http.MethodGet, "/api/v1/verifications", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.ViewSummary, svc.lastView.Mode)

		var resp ViewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 3)
		assert.Equal(t, 3, resp.Stats.Total)
		assert.Nil(t, resp.Highlight)
	})

	t.Run("full view with filter search and highlight", func(t *testing.T) {
		svc := newMockService()
		svc.records = testRecords()

		rec := do(t, setupRouter(svc), http.MethodGet,
			"/api/v1/verifications?view=all&filter=accessible&q=A.EXAMPLE&url=https://a.example&offline=true", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.ViewAll, svc.lastView.Mode)
		assert.Equal(t, domain.FilterAccessible, svc.lastView.Filter)
		assert.Equal(t, "A.EXAMPLE", svc.lastView.Search)
		assert.True(t, svc.lastView.Offline)

		var resp ViewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "https://a.example", resp.Data[0].URL)
		require.NotNil(t, resp.Highlight)
		assert.Equal(t, 0, resp.Highlight.Index)
	})

	t.Run("empty history renders empty array", func(t *testing.T) {
		rec := do(t, setupRouter(newMockService()), http.MethodGet, "/api/v1/verifications", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
	})

	t.Run("invalid filter", func(t *testing.T) {
		rec := do(t, setupRouter(newMockService()), http.MethodGet, "/api/v1/verifications?filter=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid view", func(t *testing.T) {
		rec := do(t, setupRouter(newMockService()), http.MethodGet, "/api/v1/verifications?view=grid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fetch failure", func(t *testing.T) {
		svc := newMockService()
		svc.viewErr = &genlayer.PhaseError{Phase: genlayer.PhaseFetch, Err: errors.New("read reverted")}
		rec := do(t, setupRouter(svc), http.MethodGet, "/api/v1/verifications", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "FETCH_FAILED", errorCode(t, rec))
	})

	t.Run("no snapshot offline", func(t *testing.T) {
		svc := newMockService()
		svc.viewErr = domain.ErrNoSnapshot
		rec := do(t, setupRouter(svc), http.MethodGet, "/api/v1/verifications?offline=true", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Stats(t *testing.T) {
	svc := newMockService()
	svc.records = testRecords()

	rec := do(t, setupRouter(svc), http.MethodGet, "/api/v1/verifications/stats", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.Stats{Total: 3, Accessible: 1, Inaccessible: 1, NoContent: 1}, resp.Stats)
}

const subID = "3f6c0c1e-0b7e-4b8e-9d55-2f5f0c2f7d10"

func TestHandler_Submissions(t *testing.T) {
	svc := newMockService()
	svc.submissions[subID] = &domain.Submission{ID: subID, URL: "https://a.example", State: domain.StateConfirmed}
	router := setupRouter(svc)

	t.Run("list with limit clamp", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions?limit=500&state=confirmed&url=https://a.example", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 20, svc.lastPage.Limit)
		assert.Equal(t, "confirmed", svc.lastFilter.State)
		assert.Equal(t, "https://a.example", svc.lastFilter.URL)

		var resp SubmissionListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 1)
		assert.Equal(t, 20, resp.Pagination.Limit)
	})

	t.Run("custom limit", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions?limit=5", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, svc.lastPage.Limit)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions?cursor=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions/"+subID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"state":"confirmed"`)
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions/0b8e3c5a-9d0e-4c41-8f0a-6f1b2c3d4e5f", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/submissions/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

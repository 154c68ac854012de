// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/urlverifier/internal/genlayer"
	"github.com/pendergraft/urlverifier/internal/storage"
	"github.com/pendergraft/urlverifier/internal/validation"
	"github.com/pendergraft/urlverifier/internal/verification/domain"
)

// Service defines the verification service interface for HTTP transport.
type Service interface {
	Initialize(ctx context.Context) (*domain.Status, error)
	Status(ctx context.Context) *domain.Status
	Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error)
	View(ctx context.Context, req domain.ViewRequest) (*domain.ViewResult, error)
	Submissions(ctx context.Context, filter domain.SubmissionFilter, pagination domain.PaginationParams) (*domain.SubmissionList, error)
	Submission(ctx context.Context, id string) (*domain.Submission, error)
}

// Handler handles HTTP requests for verifications.
type Handler struct {
	svc Service
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/verifications", h.handleView)
	r.Get("/verifications/stats", h.handleStats)
	r.Get("/submissions", h.handleListSubmissions)
	r.Get("/submissions/{id}", h.handleGetSubmission)
}

// RegisterWriteRoutes registers routes that spend gas or change the session (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/initialize", h.handleInitialize)
	r.Post("/verifications", h.handleSubmit)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Initialize(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	res, err := h.svc.Submit(r.Context(), req.ToDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{
		SubmitResult: *res,
		Message:      "Verification confirmed; refresh to see the result",
	})
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := domain.ParseViewMode(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	filter, err := domain.ParseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	res, err := h.svc.View(r.Context(), domain.ViewRequest{
		ViewOptions: domain.ViewOptions{
			Mode:   mode,
			Filter: filter,
			Search: q.Get("q"),
		},
		Offline:      q.Get("offline") == "true",
		HighlightURL: q.Get("url"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records := res.Records
	if records == nil {
		records = []domain.Record{}
	}
	resp := ViewResponse{
		Data:      records,
		Stats:     res.Stats,
		View:      mode,
		Filter:    filter,
		Search:    q.Get("q"),
		Source:    res.Source,
		FetchedAt: res.FetchedAt,
	}
	if res.Highlight >= 0 {
		resp.Highlight = &Highlight{Index: res.Highlight, Key: res.HighlightKey}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.View(r.Context(), domain.ViewRequest{
		ViewOptions: domain.ViewOptions{Mode: domain.ViewSummary},
		Offline:     r.URL.Query().Get("offline") == "true",
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: res.Stats, Source: res.Source, FetchedAt: res.FetchedAt})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.Submissions(r.Context(), domain.SubmissionFilter{
		State: r.URL.Query().Get("state"),
		URL:   r.URL.Query().Get("url"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmissionListResponse{
		Data: result.Submissions,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if validation.ValidateSubmissionID(id) != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Submission not found")
		return
	}

	sub, err := h.svc.Submission(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// writeDomainError maps service errors to HTTP responses. Chain failures
// keep their phase-prefixed message so callers see the cause.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, genlayer.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrInvalidFilter), errors.Is(err, domain.ErrInvalidViewMode):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, storage.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid cursor")
	case errors.Is(err, genlayer.ErrContractNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "SETUP_REQUIRED", err.Error())
	case errors.Is(err, genlayer.ErrNotInitialized):
		writeError(w, http.StatusConflict, "NOT_INITIALIZED", err.Error())
	case errors.Is(err, genlayer.ErrConfirmationTimeout):
		writeError(w, http.StatusGatewayTimeout, "CONFIRMATION_TIMEOUT",
			err.Error()+"; the verification may still be recorded on-chain")
	case errors.Is(err, domain.ErrSubmissionNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Submission not found")
	case errors.Is(err, domain.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No stored verifications yet")
	default:
		switch genlayer.PhaseOf(err) {
		case genlayer.PhaseInitialize:
			writeError(w, http.StatusBadGateway, "INITIALIZATION_FAILED", err.Error())
		case genlayer.PhaseSubmit:
			writeError(w, http.StatusBadGateway, "SUBMISSION_FAILED", err.Error())
		case genlayer.PhaseFetch:
			writeError(w, http.StatusBadGateway, "FETCH_FAILED", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

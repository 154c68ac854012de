package domain

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Initialize(ctx context.Context) (*Status, error) {
	start := time.Now()
	status, err := m.next.Initialize(ctx)
	m.logger.Info("Initialize",
		"duration", time.Since(start),
		"error", err,
	)
	return status, err
}

func (m *loggingMiddleware) Status(ctx context.Context) *Status {
	return m.next.Status(ctx)
}

func (m *loggingMiddleware) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	start := time.Now()
	res, err := m.next.Submit(ctx, req)
	attrs := []any{
		"url", req.URL,
		"query", req.Query != "",
		"force_refresh", req.ForceRefresh,
		"duration", time.Since(start),
		"error", err,
	}
	if res != nil {
		attrs = append(attrs, "tx_hash", res.TxHash, "attempts", res.Attempts)
	}
	m.logger.Info("Submit", attrs...)
	return res, err
}

func (m *loggingMiddleware) Records(ctx context.Context) ([]Record, Source, error) {
	start := time.Now()
	records, source, err := m.next.Records(ctx)
	m.logger.Debug("Records",
		"count", len(records),
		"source", source,
		"duration", time.Since(start),
		"error", err,
	)
	return records, source, err
}

func (m *loggingMiddleware) View(ctx context.Context, req ViewRequest) (*ViewResult, error) {
	start := time.Now()
	res, err := m.next.View(ctx, req)
	count := 0
	if res != nil {
		count = len(res.Records)
	}
	m.logger.Debug("View",
		"mode", req.Mode,
		"filter", req.Filter,
		"search", req.Search,
		"offline", req.Offline,
		"count", count,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) LastSnapshot(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := m.next.LastSnapshot(ctx)
	m.logger.Debug("LastSnapshot",
		"duration", time.Since(start),
		"error", err,
	)
	return snap, err
}

func (m *loggingMiddleware) Submissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*SubmissionList, error) {
	start := time.Now()
	res, err := m.next.Submissions(ctx, filter, pagination)
	m.logger.Debug("Submissions",
		"state", filter.State,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) Submission(ctx context.Context, id string) (*Submission, error) {
	start := time.Now()
	sub, err := m.next.Submission(ctx, id)
	m.logger.Debug("Submission",
		"id", id,
		"duration", time.Since(start),
		"error", err,
	)
	return sub, err
}

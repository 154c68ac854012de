package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/urlverifier/internal/chain"
	"github.com/pendergraft/urlverifier/internal/genlayer"
	"github.com/pendergraft/urlverifier/internal/observability/metrics"
	"github.com/pendergraft/urlverifier/internal/storage"
)

// Common errors returned by the verification service.
var (
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrInvalidViewMode    = errors.New("invalid view mode")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNoSnapshot         = errors.New("no stored verifications")
)

// Service defines the verification service interface.
type Service interface {
	// Initialize (re)establishes the chain session.
	Initialize(ctx context.Context) (*Status, error)

	// Status reports the session without touching the network.
	Status(ctx context.Context) *Status

	// Submit verifies a URL on-chain and waits for confirmation.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// Records reads the canonical sequence, most recent first.
	Records(ctx context.Context) ([]Record, Source, error)

	// View renders a summary or filtered history view.
	View(ctx context.Context, req ViewRequest) (*ViewResult, error)

	// LastSnapshot returns the last sequence read from the chain.
	LastSnapshot(ctx context.Context) (*Snapshot, error)

	// Submissions lists journaled submissions, newest first.
	Submissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*SubmissionList, error)

	// Submission returns one journaled submission.
	Submission(ctx context.Context, id string) (*Submission, error)
}

// Chain is the subset of genlayer.Client the service uses.
type Chain interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool
	IsContractConfigured() bool
	ContractAddress() string
	AccountAddress() string
	Endpoint() chain.Endpoint
	SubmitVerification(ctx context.Context, req genlayer.Request) (*genlayer.Confirmation, error)
	FetchVerifications(ctx context.Context) (json.RawMessage, error)
}

// Store is the storage the service needs.
type Store interface {
	CreateSubmission(ctx context.Context, s *storage.Submission) error
	CompleteSubmission(ctx context.Context, id string, outcome storage.SubmissionOutcome) error
	GetSubmission(ctx context.Context, id string) (*storage.Submission, error)
	ListSubmissions(ctx context.Context, filter storage.SubmissionFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Submission], error)
	SaveSnapshot(ctx context.Context, s *storage.Snapshot) error
	LatestSnapshot(ctx context.Context, contract string) (*storage.Snapshot, error)
	PruneSnapshots(ctx context.Context, contract string, keep int) (int64, error)
}

// Cache holds raw get_verifications payloads keyed by contract address.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, payload json.RawMessage) error
	Invalidate(ctx context.Context, key string) error
}

// Config holds service tunables.
type Config struct {
	// SnapshotsKept bounds stored snapshots per contract; 0 keeps all.
	SnapshotsKept int
}

type service struct {
	chain  Chain
	store  Store
	cache  Cache
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new verification service.
func NewService(c Chain, store Store, cache Cache, cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		chain:  c,
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *service) Initialize(ctx context.Context) (*Status, error) {
	if err := s.chain.Initialize(ctx); err != nil {
		return nil, err
	}
	return s.Status(ctx), nil
}

func (s *service) Status(ctx context.Context) *Status {
	ep := s.chain.Endpoint()
	return &Status{
		Initialized:        s.chain.IsInitialized(),
		ContractConfigured: s.chain.IsContractConfigured(),
		ContractAddress:    s.chain.ContractAddress(),
		Account:            s.chain.AccountAddress(),
		Network:            ep.Key,
		ChainID:            ep.ID,
		ChainName:          ep.Name,
		RPCURL:             ep.RPCURL,
		Symbol:             ep.Symbol,
	}
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		metrics.Submission(StateRejected)
		return nil, genlayer.ErrInvalidURL
	}
	if !s.chain.IsInitialized() {
		metrics.Submission(StateRejected)
		return nil, genlayer.ErrNotInitialized
	}

	sub := &storage.Submission{
		ID:           uuid.New().String(),
		URL:          url,
		Query:        req.Query,
		ForceRefresh: req.ForceRefresh,
		State:        StatePending,
		Contract:     s.chain.ContractAddress(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("recording submission: %w", err)
	}

	conf, err := s.chain.SubmitVerification(ctx, genlayer.Request{
		URL:          url,
		Query:        sub.Query,
		ForceRefresh: req.ForceRefresh,
	})

	// The outcome is journaled even when the caller has gone away.
	journalCtx := context.WithoutCancel(ctx)
	outcome := outcomeOf(conf, err)
	if jerr := s.store.CompleteSubmission(journalCtx, sub.ID, outcome); jerr != nil {
		s.logger.Warn("journaling submission outcome failed", "id", sub.ID, "state", outcome.State, "error", jerr)
	}
	metrics.Submission(outcome.State)

	// Any sent transaction may land on-chain, including one that timed out.
	if outcome.TxHash != "" {
		if ierr := s.cache.Invalidate(journalCtx, s.chain.ContractAddress()); ierr != nil {
			s.logger.Warn("invalidating verification cache failed", "error", ierr)
		}
	}

	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		SubmissionID: sub.ID,
		TxHash:       conf.TxHash,
		Status:       string(conf.Status),
		Attempts:     conf.Attempts,
	}, nil
}

func outcomeOf(conf *genlayer.Confirmation, err error) storage.SubmissionOutcome {
	if err == nil {
		return storage.SubmissionOutcome{
			State:    StateConfirmed,
			TxHash:   conf.TxHash,
			Attempts: conf.Attempts,
		}
	}
	o := storage.SubmissionOutcome{TxHash: genlayer.TxHashOf(err), Error: err.Error()}
	switch {
	case errors.Is(err, genlayer.ErrConfirmationTimeout):
		o.State = StateTimedOut
	case o.TxHash == "":
		o.State = StateRejected
	default:
		o.State = StateFailed
	}
	return o
}

func (s *service) Records(ctx context.Context) ([]Record, Source, error) {
	if !s.chain.IsInitialized() {
		return nil, "", genlayer.ErrNotInitialized
	}

	key := s.chain.ContractAddress()
	source := SourceCache
	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("reading verification cache failed", "error", err)
	}
	metrics.CacheLookup(hit)

	if !hit {
		source = SourceChain
		raw, err = s.chain.FetchVerifications(ctx)
		if err != nil {
			metrics.Fetch("error")
			return nil, "", err
		}
		metrics.Fetch("ok")
		if err := s.cache.Set(ctx, key, raw); err != nil {
			s.logger.Warn("writing verification cache failed", "error", err)
		}
	}

	payload := ClassifyPayload(raw)
	records := Sort(payload.Records())
	if payload.Kind == PayloadUnrecognized || (payload.Kind == PayloadJSONString && len(records) == 0) {
		s.logger.Debug("verification payload degraded to empty", "kind", payload.Kind.String())
	}

	stats := Count(records)
	metrics.Records(stats.ByCategory())

	if source == SourceChain {
		s.snapshot(ctx, key, records)
	}
	return records, source, nil
}

func (s *service) snapshot(ctx context.Context, contract string, records []Record) {
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("encoding snapshot failed", "error", err)
		return
	}
	snap := &storage.Snapshot{
		ID:          uuid.New().String(),
		Contract:    contract,
		Records:     data,
		RecordCount: len(records),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Warn("saving snapshot failed", "error", err)
		return
	}
	if s.cfg.SnapshotsKept > 0 {
		if _, err := s.store.PruneSnapshots(ctx, contract, s.cfg.SnapshotsKept); err != nil {
			s.logger.Warn("pruning snapshots failed", "error", err)
		}
	}
}

func (s *service) View(ctx context.Context, req ViewRequest) (*ViewResult, error) {
	var (
		records []Record
		source  Source
		fetched time.Time
	)
	if req.Offline {
		snap, err := s.LastSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		records, source, fetched = snap.Records, SourceSnapshot, snap.CreatedAt
	} else {
		var err error
		records, source, err = s.Records(ctx)
		if err != nil {
			return nil, err
		}
		fetched = s.now().UTC()
	}

	view := View(records, req.ViewOptions)
	res := &ViewResult{
		Records:   view,
		Stats:     Count(records),
		Source:    source,
		Highlight: Locate(view, req.HighlightURL),
		FetchedAt: fetched,
	}
	if res.Highlight >= 0 {
		res.HighlightKey = view[res.Highlight].Key(res.Highlight)
	}
	return res, nil
}

func (s *service) LastSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx, s.chain.ContractAddress())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(snap.Records, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", snap.ID, err)
	}
	if records == nil {
		records = []Record{}
	}
	return &Snapshot{
		ID:        snap.ID,
		Contract:  snap.Contract,
		Records:   records,
		CreatedAt: storage.ParseTime(snap.CreatedAt),
	}, nil
}

func (s *service) Submissions(ctx context.Context, filter SubmissionFilter, pagination PaginationParams) (*SubmissionList, error) {
	result, err := s.store.ListSubmissions(ctx, storage.SubmissionFilter{
		State: filter.State,
		URL:   filter.URL,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}

	subs := make([]Submission, len(result.Data))
	for i := range result.Data {
		subs[i] = *toSubmission(&result.Data[i])
	}
	return &SubmissionList{
		Submissions: subs,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

func (s *service) Submission(ctx context.Context, id string) (*Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return toSubmission(sub), nil
}

func toSubmission(s *storage.Submission) *Submission {
	out := &Submission{
		ID:           s.ID,
		URL:          s.URL,
		Query:        s.Query,
		ForceRefresh: s.ForceRefresh,
		State:        s.State,
		TxHash:       s.TxHash,
		Attempts:     s.Attempts,
		Error:        s.Error,
		Contract:     s.Contract,
		CreatedAt:    storage.ParseTime(s.CreatedAt),
	}
	if s.CompletedAt != "" {
		t := storage.ParseTime(s.CompletedAt)
		out.CompletedAt = &t
	}
	return out
}

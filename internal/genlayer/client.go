// Package genlayer is the transaction client for the URL verifier contract.
//
// A Client owns one session (account + connected node) and exposes the
// contract's write (process_url) and read (get_verifications) entry points.
package genlayer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/urlverifier/internal/chain"
	"github.com/pendergraft/urlverifier/internal/observability/metrics"
)

// Contract entry points.
const (
	FuncProcessURL       = "process_url"
	FuncGetVerifications = "get_verifications"
)

// Request is a verification submission.
type Request struct {
	URL          string
	Query        string
	ForceRefresh bool
}

// Confirmation acknowledges an accepted submission. It does not carry the
// resulting record; callers read it back with FetchVerifications.
type Confirmation struct {
	TxHash   string
	Status   TxStatus
	Attempts int
}

// Option configures a Client
type Option func(*Client)

// WithDialer replaces the node dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithAccountSource sets how Initialize obtains key material.
func WithAccountSource(src func() (*Account, error)) Option {
	return func(c *Client) {
		c.newAccount = src
	}
}

// WithPollPolicy sets the confirmation policy.
func WithPollPolicy(p PollPolicy) Option {
	return func(c *Client) {
		c.policy = p.normalized()
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

type session struct {
	node      Node
	account   *Account
	consensus string
}

// Client is the session-owning transaction client. It is safe for
// concurrent use; overlapping calls are not serialized against each other.
type Client struct {
	endpoint   chain.Endpoint
	dial       Dialer
	newAccount func() (*Account, error)
	policy     PollPolicy
	logger     *slog.Logger

	mu   sync.RWMutex
	sess *session
}

// NewClient creates an uninitialized client for endpoint.
func NewClient(endpoint chain.Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		dial:       DialRPC,
		newAccount: NewAccount,
		policy:     DefaultPollPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured network and contract.
func (c *Client) Endpoint() chain.Endpoint {
	return c.endpoint
}

// IsContractConfigured reports whether a contract address is configured.
func (c *Client) IsContractConfigured() bool {
	return c.endpoint.Configured()
}

// ContractAddress returns the configured contract address.
func (c *Client) ContractAddress() string {
	return c.endpoint.ContractAddress
}

// IsInitialized reports whether a live session exists.
func (c *Client) IsInitialized() bool {
	return c.current() != nil
}

// AccountAddress returns the session account, or "" before Initialize.
func (c *Client) AccountAddress() string {
	if s := c.current(); s != nil {
		return s.account.Address()
	}
	return ""
}

func (c *Client) current() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Initialize establishes the account and node session and performs the
// consensus initialization call. It makes a single attempt. Calling it
// again replaces the existing session.
func (c *Client) Initialize(ctx context.Context) error {
	if !c.endpoint.Configured() {
		return wrap(PhaseInitialize, ErrContractNotConfigured)
	}

	account, err := c.newAccount()
	if err != nil {
		return wrap(PhaseInitialize, fmt.Errorf("creating account: %w", err))
	}

	node, err := c.dial(ctx, c.endpoint.RPCURL)
	if err != nil {
		return wrap(PhaseInitialize, err)
	}

	consensus, err := node.ConsensusContract(ctx)
	if err != nil {
		node.Close()
		return wrap(PhaseInitialize, err)
	}

	c.mu.Lock()
	old := c.sess
	c.sess = &session{node: node, account: account, consensus: consensus}
	c.mu.Unlock()

	if old != nil {
		old.node.Close()
	}

	c.logger.Info("genlayer session initialized",
		"chain_id", c.endpoint.ID,
		"rpc", c.endpoint.RPCURL,
		"contract", c.endpoint.ContractAddress,
		"consensus", consensus,
		"account", account.Address(),
	)
	return nil
}

// SubmitVerification sends process_url and waits for the transaction to be
// accepted. A blank URL fails before any network call.
func (c *Client) SubmitVerification(ctx context.Context, req Request) (*Confirmation, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, ErrInvalidURL
	}

	s := c.current()
	if s == nil {
		return nil, ErrNotInitialized
	}

	data, err := encodeCalldata(FuncProcessURL, url, req.Query, req.ForceRefresh)
	if err != nil {
		return nil, wrap(PhaseSubmit, err)
	}

	signed, err := signEnvelope(s.account, envelope{
		ChainID:   c.endpoint.ID,
		From:      s.account.Address(),
		To:        s.consensus,
		Recipient: c.endpoint.ContractAddress,
		Data:      hexutil.Encode(data),
	})
	if err != nil {
		return nil, wrap(PhaseSubmit, err)
	}

	hash, err := s.node.SendTransaction(ctx, signed)
	if err != nil {
		return nil, wrap(PhaseSubmit, err)
	}

	c.logger.Debug("transaction sent", "tx_hash", hash, "url", url)

	// The transaction is out; the caller going away must not cut the wait short.
	res, err := c.policy.Wait(context.WithoutCancel(ctx), func(ctx context.Context) (TxStatus, error) {
		status, _, err := s.node.TransactionStatus(ctx, hash)
		return status, err
	})
	metrics.ConfirmationPoll(res.State.String(), res.Attempts)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseSubmit, TxHash: hash, Err: fmt.Errorf("tx %s: %w", hash, err)}
	}

	return &Confirmation{TxHash: hash, Status: res.Status, Attempts: res.Attempts}, nil
}

// FetchVerifications reads get_verifications once and returns the raw
// contract result.
func (c *Client) FetchVerifications(ctx context.Context) (json.RawMessage, error) {
	s := c.current()
	if s == nil {
		return nil, ErrNotInitialized
	}

	data, err := encodeCalldata(FuncGetVerifications)
	if err != nil {
		return nil, wrap(PhaseFetch, err)
	}

	raw, err := s.node.Call(ctx, ReadCall{
		From: s.account.Address(),
		To:   c.endpoint.ContractAddress,
		Data: data,
	})
	if err != nil {
		return nil, wrap(PhaseFetch, err)
	}
	return raw, nil
}

// Close releases the session's node connection.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s != nil {
		s.node.Close()
	}
	return nil
}

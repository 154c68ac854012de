package genlayer

import (
	"errors"
)

// Errors returned by the client. Network failures arrive wrapped in a
// *PhaseError naming the operation that failed.
var (
	// ErrContractNotConfigured means setup is required before Initialize can succeed.
	ErrContractNotConfigured = errors.New("CONTRACT_ADDRESS is required")
	// ErrNotInitialized is returned by remote operations before Initialize.
	ErrNotInitialized = errors.New("client not initialized, call Initialize first")
	// ErrInvalidURL is the validation failure for an empty or blank URL.
	ErrInvalidURL = errors.New("URL is required")
	// ErrConfirmationTimeout means the transaction never reached the target
	// status within the poll budget. It may still be recorded on-chain.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// Phase names the remote operation an error came from.
type Phase string

const (
	PhaseInitialize Phase = "initialization failed"
	PhaseSubmit     Phase = "URL processing failed"
	PhaseFetch      Phase = "failed to retrieve verifications"
)

// PhaseError wraps a failure with the phase it happened in.
type PhaseError struct {
	Phase Phase
	// TxHash is set when a transaction was sent before the failure.
	TxHash string
	Err    error
}

func (e *PhaseError) Error() string {
	return string(e.Phase) + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func wrap(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}

// PhaseOf returns the phase of err, or "" when err carries none.
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}

// TxHashOf returns the hash of the transaction err happened after, or ""
// when no transaction was sent.
func TxHashOf(err error) string {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.TxHash
	}
	return ""
}

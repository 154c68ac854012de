package genlayer

import (
	"context"
	"fmt"
	"time"
)

// PollState is the state of a confirmation wait.
type PollState int

const (
	PollPending PollState = iota
	PollPolling
	PollConfirmed
	PollTimedOut
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollPolling:
		return "polling"
	case PollConfirmed:
		return "confirmed"
	case PollTimedOut:
		return "timed_out"
	case PollFailed:
		return "failed"
	default:
		return fmt.Sprintf("PollState(%d)", int(s))
	}
}

// Terminal reports whether no further status checks will happen.
func (s PollState) Terminal() bool {
	return s == PollConfirmed || s == PollTimedOut || s == PollFailed
}

// PollPolicy bounds how long a submission waits for confirmation.
// It is a fixed-interval wait, not a backoff.
type PollPolicy struct {
	Attempts int
	Interval time.Duration
	Target   TxStatus
}

// DefaultPollPolicy waits up to 24 checks, 5s apart, for ACCEPTED.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Attempts: 24,
		Interval: 5 * time.Second,
		Target:   StatusAccepted,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	d := DefaultPollPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Target == StatusUnknown {
		p.Target = d.Target
	}
	return p
}

// PollResult describes where a confirmation wait ended.
type PollResult struct {
	State    PollState
	Attempts int
	Status   TxStatus
}

// StatusCheck is the single oracle the poll consults per attempt.
type StatusCheck func(ctx context.Context) (TxStatus, error)

// confirmation is the poll state machine. Each observation is one attempt.
type confirmation struct {
	policy  PollPolicy
	state   PollState
	attempt int
	last    TxStatus
	err     error
}

func newConfirmation(p PollPolicy) *confirmation {
	return &confirmation{policy: p.normalized(), state: PollPending}
}

func (m *confirmation) observe(status TxStatus, err error) PollState {
	if m.state.Terminal() {
		return m.state
	}
	m.attempt++
	switch {
	case err != nil:
		m.state = PollFailed
		m.err = err
	case status.Satisfies(m.policy.Target):
		m.last = status
		m.state = PollConfirmed
	case m.attempt >= m.policy.Attempts:
		m.last = status
		m.state = PollTimedOut
	default:
		m.last = status
		m.state = PollPolling
	}
	return m.state
}

func (m *confirmation) result() PollResult {
	return PollResult{State: m.state, Attempts: m.attempt, Status: m.last}
}

// Wait checks status until the target is reached, the attempt budget is
// spent, or check fails. The first check happens immediately; Interval
// separates subsequent ones. Once started the wait runs to completion:
// cancelling ctx does not end it, and check sees a context that is never
// cancelled.
func (p PollPolicy) Wait(ctx context.Context, check StatusCheck) (PollResult, error) {
	ctx = context.WithoutCancel(ctx)
	m := newConfirmation(p)
	for {
		switch m.observe(check(ctx)) {
		case PollConfirmed:
			return m.result(), nil
		case PollTimedOut:
			last := m.last
			if last == StatusUnknown {
				last = "not found"
			}
			return m.result(), fmt.Errorf("%w: status %s after %d attempts", ErrConfirmationTimeout, last, m.attempt)
		case PollFailed:
			return m.result(), m.err
		}
		time.Sleep(m.policy.Interval)
	}
}

package genlayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC methods served by a GenLayer node.
const (
	methodConsensusContract = "sim_getConsensusContract"
	methodSendRawTx         = "eth_sendRawTransaction"
	methodGetTransaction    = "eth_getTransactionByHash"
	methodCall              = "gen_call"

	consensusContractName = "ConsensusMain"
)

// TxStatus is a transaction's consensus status name.
type TxStatus string

const (
	StatusUnknown   TxStatus = ""
	StatusPending   TxStatus = "PENDING"
	StatusAccepted  TxStatus = "ACCEPTED"
	StatusFinalized TxStatus = "FINALIZED"
	StatusCanceled  TxStatus = "CANCELED"
)

// Nodes report status either by name or by its index in this table.
var statusByNumber = []TxStatus{
	"UNINITIALIZED",
	StatusPending,
	"PROPOSING",
	"COMMITTING",
	"REVEALING",
	StatusAccepted,
	"UNDETERMINED",
	StatusFinalized,
	StatusCanceled,
	"APPEAL_REVEALING",
	"APPEAL_COMMITTING",
	"READY_TO_FINALIZE",
	"VALIDATORS_TIMEOUT",
	"LEADER_TIMEOUT",
}

// Satisfies reports whether s is at least as settled as want.
// A finalized transaction has necessarily been accepted.
func (s TxStatus) Satisfies(want TxStatus) bool {
	if s == want {
		return true
	}
	return want == StatusAccepted && s == StatusFinalized
}

func parseStatus(raw json.RawMessage) TxStatus {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if n, err := strconv.Atoi(name); err == nil {
			return statusFromNumber(n)
		}
		return TxStatus(strings.ToUpper(strings.TrimSpace(name)))
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return statusFromNumber(n)
	}
	return StatusUnknown
}

func statusFromNumber(n int) TxStatus {
	if n < 0 || n >= len(statusByNumber) {
		return StatusUnknown
	}
	return statusByNumber[n]
}

// ReadCall is a read-only contract invocation.
type ReadCall struct {
	From string
	To   string
	Data []byte
}

// Node is the subset of the GenLayer node API the client consumes.
type Node interface {
	// ConsensusContract resolves the consensus entry point address.
	ConsensusContract(ctx context.Context) (string, error)
	// SendTransaction submits a signed transaction and returns its hash.
	SendTransaction(ctx context.Context, signed []byte) (string, error)
	// TransactionStatus returns the status of hash; found is false while
	// the node does not know the transaction yet.
	TransactionStatus(ctx context.Context, hash string) (status TxStatus, found bool, err error)
	// Call performs a read and returns the contract result untouched.
	Call(ctx context.Context, call ReadCall) (json.RawMessage, error)
	Close()
}

// Dialer connects to the node at rpcURL.
type Dialer func(ctx context.Context, rpcURL string) (Node, error)

// DialRPC is the default Dialer, backed by a go-ethereum JSON-RPC client.
func DialRPC(ctx context.Context, rpcURL string) (Node, error) {
	c, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rpcURL, err)
	}
	return &rpcNode{c: c}, nil
}

type rpcNode struct {
	c *rpc.Client
}

func (n *rpcNode) ConsensusContract(ctx context.Context) (string, error) {
	var res struct {
		Address string `json:"address"`
	}
	if err := n.c.CallContext(ctx, &res, methodConsensusContract, consensusContractName); err != nil {
		return "", err
	}
	if res.Address == "" {
		return "", errors.New("node returned no consensus contract address")
	}
	return res.Address, nil
}

func (n *rpcNode) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	var hash string
	if err := n.c.CallContext(ctx, &hash, methodSendRawTx, hexutil.Encode(signed)); err != nil {
		return "", err
	}
	if hash == "" {
		return "", errors.New("node returned an empty transaction hash")
	}
	return hash, nil
}

func (n *rpcNode) TransactionStatus(ctx context.Context, hash string) (TxStatus, bool, error) {
	var tx *struct {
		Status json.RawMessage `json:"status"`
	}
	err := n.c.CallContext(ctx, &tx, methodGetTransaction, hash)
	if errors.Is(err, rpc.ErrNoResult) {
		return StatusUnknown, false, nil
	}
	if err != nil {
		return StatusUnknown, false, err
	}
	if tx == nil {
		return StatusUnknown, false, nil
	}
	return parseStatus(tx.Status), true, nil
}

func (n *rpcNode) Call(ctx context.Context, call ReadCall) (json.RawMessage, error) {
	var out json.RawMessage
	err := n.c.CallContext(ctx, &out, methodCall, map[string]any{
		"from": call.From,
		"to":   call.To,
		"data": hexutil.Encode(call.Data),
		"type": "read",
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *rpcNode) Close() {
	n.c.Close()
}

// calldata is the contract invocation carried in a transaction or call.
type calldata struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

func encodeCalldata(method string, args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	return json.Marshal(calldata{Method: method, Args: args})
}

// envelope is the signed write transaction. Signature covers the JSON
// encoding of the envelope with Signature empty.
type envelope struct {
	ChainID   int    `json:"chainId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Recipient string `json:"recipient"`
	Data      string `json:"data"`
	Signature string `json:"signature,omitempty"`
}

func signEnvelope(a *Account, env envelope) ([]byte, error) {
	env.Signature = ""
	unsigned, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	sig, err := a.Sign(unsigned)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	env.Signature = hexutil.Encode(sig)
	return json.Marshal(env)
}

//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/urlverifier/internal/cache"
	"github.com/pendergraft/urlverifier/internal/chain"
	"github.com/pendergraft/urlverifier/internal/config"
	"github.com/pendergraft/urlverifier/internal/genlayer"
	"github.com/pendergraft/urlverifier/internal/server"
	"github.com/pendergraft/urlverifier/internal/storage"
	"github.com/pendergraft/urlverifier/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	contractAddress  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	consensusAddress = "0x0000000000000000000000000000000000000c0e"

	// slowURL is never accepted by the fake node.
	slowURL = "https://slow.example"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	RedisContainer    testcontainers.Container
	ConnString        string
	RedisAddr         string
	Node              *fakeNode
	NodeServer        *httptest.Server
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("urlverifier"),
		postgres.WithUsername("urlverifier"),
		postgres.WithPassword("urlverifier"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// setupRedisE starts a Redis container and returns its address
func setupRedisE(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	return container, endpoint, nil
}

// fakeNode is an in-memory GenLayer node. Every accepted process_url call
// appends a record, which get_verifications returns as a pair-list
// sequence the way the contract does.
type fakeNode struct {
	mu      sync.Mutex
	seq     int
	txs     map[string]*fakeTx
	records [][][2]any
}

type fakeTx struct {
	url    string
	checks int
}

func newFakeNode() *fakeNode {
	return &fakeNode{txs: make(map[string]*fakeTx)}
}

// Handler serves the node over JSON-RPC with go-ethereum's server.
func (n *fakeNode) Handler() (*rpc.Server, error) {
	srv := rpc.NewServer()
	for name, svc := range map[string]any{
		"sim": &simAPI{n},
		"eth": &ethAPI{n},
		"gen": &genAPI{n},
	} {
		if err := srv.RegisterName(name, svc); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

type simAPI struct{ n *fakeNode }

func (a *simAPI) GetConsensusContract(name string) (map[string]string, error) {
	if name != "ConsensusMain" {
		return nil, fmt.Errorf("unknown contract %q", name)
	}
	return map[string]string{"address": consensusAddress}, nil
}

type ethAPI struct{ n *fakeNode }

type envelope struct {
	To        string `json:"to"`
	Recipient string `json:"recipient"`
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

type calldata struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

func (a *ethAPI) SendRawTransaction(raw hexutil.Bytes) (string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("bad envelope: %w", err)
	}
	if env.Signature == "" || env.Recipient != contractAddress || env.To != consensusAddress {
		return "", fmt.Errorf("unsigned or misaddressed transaction")
	}
	data, err := hexutil.Decode(env.Data)
	if err != nil {
		return "", err
	}
	var call calldata
	if err := json.Unmarshal(data, &call); err != nil || call.Method != "process_url" || len(call.Args) != 3 {
		return "", fmt.Errorf("unexpected calldata %s", data)
	}
	url, _ := call.Args[0].(string)
	query, _ := call.Args[1].(string)

	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	a.n.seq++
	hash := fmt.Sprintf("0x%064x", a.n.seq)
	a.n.txs[hash] = &fakeTx{url: url}
	if url != slowURL {
		a.n.records = append(a.n.records, recordFor(url, query))
	}
	return hash, nil
}

// recordFor builds the stored verification. URLs containing "broken" are
// unreachable; queries containing "missing" find nothing.
func recordFor(url, query string) [][2]any {
	rec := [][2]any{
		{"url", url},
		{"timestamp", time.Now().UTC().Format(time.RFC3339Nano)},
		{"query", query},
	}
	switch {
	case strings.Contains(url, "broken"):
		rec = append(rec, [2]any{"status_code", 404}, [2]any{"is_accessible", false}, [2]any{"error_message", "Not Found"})
	case strings.Contains(query, "missing"):
		rec = append(rec, [2]any{"status_code", 200}, [2]any{"is_accessible", true},
			[2]any{"content_found", false}, [2]any{"concise_answer", "Not found"}, [2]any{"analysis", "Nothing on the page answers the question."})
	default:
		rec = append(rec, [2]any{"status_code", 200}, [2]any{"is_accessible", true},
			[2]any{"content_found", query != ""}, [2]any{"concise_answer", "Yes"}, [2]any{"analysis", "The page answers the question."})
	}
	return rec
}

type txResult struct {
	Hash   string `json:"hash"`
	Status any    `json:"status"`
}

// GetTransactionByHash reports PENDING on the first check and ACCEPTED (as
// its numeric code) afterwards. The slow URL stays pending.
func (a *ethAPI) GetTransactionByHash(hash string) (*txResult, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	tx, ok := a.n.txs[hash]
	if !ok {
		return nil, nil
	}
	tx.checks++
	if tx.url == slowURL || tx.checks == 1 {
		return &txResult{Hash: hash, Status: "PENDING"}, nil
	}
	return &txResult{Hash: hash, Status: 5}, nil
}

type genAPI struct{ n *fakeNode }

type callArgs struct {
	From string        `json:"from"`
	To   string        `json:"to"`
	Data hexutil.Bytes `json:"data"`
	Type string        `json:"type"`
}

func (a *genAPI) Call(args callArgs) (json.RawMessage, error) {
	var call calldata
	if err := json.Unmarshal(args.Data, &call); err != nil || call.Method != "get_verifications" {
		return nil, fmt.Errorf("unexpected read %s", args.Data)
	}
	if args.To != contractAddress || args.Type != "read" {
		return nil, fmt.Errorf("unexpected read target %s", args.To)
	}
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	records := a.n.records
	if records == nil {
		records = [][][2]any{}
	}
	return json.Marshal(records)
}

// startServerE starts the urlverifier server in-process against the fake
// node, Postgres and Redis, and initializes its chain session.
func startServerE(tc *TestContext) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Chain: config.ChainConfig{
			Network:         "localnet",
			RPCURL:          tc.NodeServer.URL,
			ContractAddress: contractAddress,
		},
		Poll: config.PollConfig{Attempts: 3, Interval: 20 * time.Millisecond},
		Storage: config.StorageConfig{
			Type:          "postgres",
			Postgres:      config.PostgresConfig{URL: tc.ConnString},
			SnapshotsKept: 5,
		},
		Auth: config.AuthConfig{Type: "api-key"},
		Cache: config.CacheConfig{
			Enabled:    true,
			RedisAddr:  tc.RedisAddr,
			TTLSeconds: 60,
		},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeKB: 64},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	payloadCache, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache: %w", err)
	}

	endpoint, err := cfg.Chain.Endpoint(chain.DefaultRegistry())
	if err != nil {
		return nil, nil, err
	}
	chainClient := genlayer.NewClient(endpoint,
		genlayer.WithPollPolicy(genlayer.PollPolicy{Attempts: cfg.Poll.Attempts, Interval: cfg.Poll.Interval}),
		genlayer.WithLogger(logger),
	)

	srv := server.New(cfg, store, chainClient, payloadCache, logger, "1.0.0-e2e")
	srv.Warmup(ctx)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// uniqueURL returns a URL no other test submits.
func uniqueURL(t *testing.T, tag string) string {
	return fmt.Sprintf("https://%s.example/%s", tag, strings.NewReplacer("/", "-", " ", "-").Replace(t.Name()))
}

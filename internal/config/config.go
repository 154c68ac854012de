package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pendergraft/urlverifier/internal/chain"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Chain     ChainConfig
	Account   AccountConfig
	Poll      PollConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds; must outlast a full confirmation poll
	IdleTimeout  int // seconds
}

// ChainConfig selects the GenLayer network and verifier contract
type ChainConfig struct {
	Network         string // registry key, see internal/chain
	ChainID         int    // 0 keeps the network default
	ChainName       string
	RPCURL          string
	Symbol          string
	ContractAddress string
	AutoInitialize  bool // initialize the session at startup
}

// Endpoint resolves the configured network against the registry.
func (c ChainConfig) Endpoint(r *chain.Registry) (chain.Endpoint, error) {
	n, err := r.Resolve(c.Network, chain.Overrides{
		ID:     c.ChainID,
		Name:   c.ChainName,
		RPCURL: c.RPCURL,
		Symbol: c.Symbol,
	})
	if err != nil {
		return chain.Endpoint{}, err
	}
	return chain.Endpoint{Network: n, ContractAddress: c.ContractAddress}, nil
}

// AccountConfig holds the signing key source. Both empty means a fresh
// ephemeral account per initialization.
type AccountConfig struct {
	PrivateKey string
	KeyFile    string
}

// PollConfig holds the transaction confirmation policy
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type          string // "sqlite" or "postgres"
	Postgres      PostgresConfig
	SQLite        SQLiteConfig
	SnapshotsKept int
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// CacheConfig holds the verification payload cache settings
type CacheConfig struct {
	Enabled    bool
	RedisAddr  string
	RedisDB    int
	Password   string
	TTLSeconds int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	SubmitsPerMin  int // each submission is a signed transaction
	CleanupMinutes int
}

// SecurityConfig holds request hardening settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeKB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 150),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Chain: ChainConfig{
			Network:         getEnv("GENLAYER_NETWORK", "studionet"),
			ChainID:         getEnvInt("GENLAYER_CHAIN_ID", 0),
			ChainName:       getEnv("GENLAYER_CHAIN_NAME", ""),
			RPCURL:          getEnv("GENLAYER_RPC_URL", ""),
			Symbol:          getEnv("GENLAYER_SYMBOL", ""),
			ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
			AutoInitialize:  getEnvBool("GENLAYER_AUTO_INIT", true),
		},
		Account: AccountConfig{
			PrivateKey: getEnv("ACCOUNT_PRIVATE_KEY", ""),
			KeyFile:    getEnv("ACCOUNT_KEY_FILE", ""),
		},
		Poll: PollConfig{
			Attempts: getEnvInt("CONFIRM_ATTEMPTS", 24),
			Interval: time.Duration(getEnvInt("CONFIRM_INTERVAL_MS", 5000)) * time.Millisecond,
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/urlverifier.db"),
			},
			SnapshotsKept: getEnvInt("SNAPSHOTS_KEPT", 20),
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "none"),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", false),
			RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:    getEnvInt("REDIS_DB", 0),
			Password:   getEnv("REDIS_PASSWORD", ""),
			TTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 15),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 120),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 20),
			SubmitsPerMin:  getEnvInt("RATE_LIMIT_SUBMIT_RPM", 6),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeKB: getEnvInt("SECURITY_MAX_BODY_SIZE_KB", 64),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if cfg.Poll.Attempts <= 0 {
		cfg.Poll.Attempts = 24
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 5 * time.Second
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

type Config struct {
	// Marketplace API
	APIBaseURL     string
	HTTPTimeout    time.Duration
	HTTPGetRetries int
	PriceFeedURL   string
	PriceCacheTTL  time.Duration

	// Session storage
	SessionBackend string // sqlite / redis / memory
	SQLitePath     string
	RedisURL       string
	RedisKeyPrefix string

	// EVM wallet
	EVMWalletRPCURL       string // EIP-1193 JSON-RPC bridge
	EVMKeystoreDir        string
	EVMKeystorePassphrase string
	EVMDefaultChainID     int64
	WalletPollInterval    time.Duration

	// Bitcoin wallet
	BTCPrivateKeyHex string
	BTCNetwork       string // mainnet / testnet / signet / regtest

	// Wallet session
	AllowFallbackSignMessage bool
	VerifySignatures         bool

	// Uploads
	UploadBatchSize        int
	UploadBatchesPerSecond float64
	ProgressPollInterval   time.Duration

	// Local API
	LocalAPIHost      string
	LocalAPIPort      string
	LocalAPIRateLimit int // requests per second for mutating routes
	AllowedOrigins    []string

	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:3001"),
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		HTTPGetRetries: getEnvInt("HTTP_GET_MAX_RETRIES", 2),
		PriceFeedURL:   getEnv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"),
		PriceCacheTTL:  time.Duration(getEnvInt("PRICE_CACHE_TTL_SECONDS", 300)) * time.Second,

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "sqlite")),
		SQLitePath:     getEnv("SQLITE_PATH", defaultSQLitePath()),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "marketplace:session:"),

		EVMWalletRPCURL:       getEnv("EVM_WALLET_RPC_URL", ""),
		EVMKeystoreDir:        getEnv("EVM_KEYSTORE_DIR", ""),
		EVMKeystorePassphrase: getEnv("EVM_KEYSTORE_PASSPHRASE", ""),
		EVMDefaultChainID:     getEnvInt64("EVM_DEFAULT_CHAIN_ID", 1),
		WalletPollInterval:    time.Duration(getEnvInt("WALLET_POLL_INTERVAL_SECONDS", 3)) * time.Second,

		BTCPrivateKeyHex: getEnv("BTC_PRIVATE_KEY_HEX", ""),
		BTCNetwork:       strings.ToLower(getEnv("BTC_NETWORK", "testnet")),

		AllowFallbackSignMessage: getEnvBool("ALLOW_FALLBACK_SIGN_MESSAGE", true),
		VerifySignatures:         getEnvBool("VERIFY_SIGNATURES", true),

		UploadBatchSize:        getEnvInt("UPLOAD_BATCH_SIZE", 10),
		UploadBatchesPerSecond: getEnvFloat("UPLOAD_BATCHES_PER_SECOND", 2),
		ProgressPollInterval:   time.Duration(getEnvInt("PROGRESS_POLL_INTERVAL_SECONDS", 8)) * time.Second,

		LocalAPIHost:      getEnv("LOCAL_API_HOST", "127.0.0.1"),
		LocalAPIPort:      getEnv("LOCAL_API_PORT", "4040"),
		LocalAPIRateLimit: getEnvInt("LOCAL_API_RATE_LIMIT", 20),
		AllowedOrigins:    parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if cfg.UploadBatchSize <= 0 {
		cfg.UploadBatchSize = 10
	}

	return cfg
}

func (c *Config) Validate(log *zap.Logger) {
	if c.EVMWalletRPCURL == "" && c.EVMKeystoreDir == "" {
		log.Warn("no EVM wallet configured, EVM layers will report wallet not found")
	}
	if c.BTCPrivateKeyHex == "" {
		log.Warn("no bitcoin wallet configured, UTXO layers will report wallet not found")
	}
	if c.EVMKeystoreDir != "" && c.EVMKeystorePassphrase == "" {
		log.Warn("EVM_KEYSTORE_PASSPHRASE is empty")
	}
	if c.AllowFallbackSignMessage {
		log.Warn("fallback sign-in messages are enabled, signed messages may not be server-attested")
	}
	if c.LocalAPIHost != "127.0.0.1" && c.LocalAPIHost != "localhost" {
		log.Warn("local API is not bound to loopback", zap.String("host", c.LocalAPIHost))
	}
	if c.SessionBackend == "memory" {
		log.Warn("SESSION_BACKEND=memory, the session will not survive a restart")
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "marketplace-session.db"
	}
	return dir + string(os.PathSeparator) + "nft-marketplace" + string(os.PathSeparator) + "session.db"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BitcoinNetwork maps BTC_NETWORK onto the layer network of the local signer.
func (c *Config) BitcoinNetwork() models.Network {
	if c.BTCNetwork == "mainnet" {
		return models.NetworkMainnet
	}
	return models.NetworkTestnet
}

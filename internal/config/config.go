// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrDatabaseURLRequired はDATABASE_URLが必要なコマンドで未設定の場合のエラー。
var ErrDatabaseURLRequired = errors.New("required environment variables are not set: [DATABASE_URL]")

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	RateLimitGeneral  int

	// Earnings providers（APIキー未設定のプロバイダはスキップする）
	FinnhubAPIKey      string
	FMPAPIKey          string
	AlphaVantageAPIKey string
	ProviderTimeout    time.Duration
	// EarningsTimeout はカレンダー1回分（フォールバックとエンリッチメント）の上限。HTTPのWriteTimeoutはこれより長く取る
	EarningsTimeout time.Duration

	// Enrichment
	EnrichMaxSymbols    int
	EnrichInterval      time.Duration
	EnrichMaxConcurrent int
	DefaultRangeDays    int

	// Post feeds
	FeedTimeout time.Duration
	FeedMaxSize int64

	// Browse client
	APIBaseURL string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定済みの環境変数は上書きしない。
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles は指定した.envファイルを読み込んだ上で環境変数からConfigを読み込む。
// 存在しないファイルは無視する。
func LoadFiles(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)

	cfg.FinnhubAPIKey = strings.TrimSpace(os.Getenv("FINNHUB_API_KEY"))
	cfg.FMPAPIKey = strings.TrimSpace(os.Getenv("FMP_API_KEY"))
	cfg.AlphaVantageAPIKey = strings.TrimSpace(os.Getenv("ALPHAVANTAGE_API_KEY"))
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.EarningsTimeout = getEnvDuration("EARNINGS_TIMEOUT", 20*time.Second)

	cfg.EnrichMaxSymbols = getEnvInt("ENRICH_MAX_SYMBOLS", 20)
	cfg.EnrichInterval = getEnvDuration("ENRICH_INTERVAL", 200*time.Millisecond)
	cfg.EnrichMaxConcurrent = getEnvInt("ENRICH_MAX_CONCURRENT", 3)
	cfg.DefaultRangeDays = getEnvInt("DEFAULT_RANGE_DAYS", 7)

	cfg.FeedTimeout = getEnvDuration("FEED_TIMEOUT", 10*time.Second)
	cfg.FeedMaxSize = getEnvInt64("FEED_MAX_SIZE", 5242880)

	cfg.APIBaseURL = getEnvString("API_BASE_URL", "http://localhost:8080")

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// RequireDatabase はDBを使用するコマンド（serve, migrate）の前提条件を検証する。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

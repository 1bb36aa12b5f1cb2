package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/kolboard/internal/config"
	"github.com/hitoshi/kolboard/internal/database"
	"github.com/hitoshi/kolboard/internal/earnings"
	"github.com/hitoshi/kolboard/internal/handler"
	"github.com/hitoshi/kolboard/internal/logger"
	"github.com/hitoshi/kolboard/internal/metrics"
	"github.com/hitoshi/kolboard/internal/middleware"
	"github.com/hitoshi/kolboard/internal/postfeed"
	"github.com/hitoshi/kolboard/internal/repository"
	"github.com/hitoshi/kolboard/internal/security"
	"github.com/hitoshi/kolboard/internal/throttle"
	"github.com/hitoshi/kolboard/internal/trending"
)

const (
	// shutdownTimeout はグレースフルシャットダウンの待機上限。
	shutdownTimeout = 30 * time.Second
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// writeTimeoutMargin は決算カレンダーの期限に上乗せする書き込み猶予。
	writeTimeoutMargin = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定が読めなくてもエラーログは出せるようにする
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// buildEarningsService は決算カレンダーのフォールバックチェーンを組み立てる。
// APIキー未設定のプロバイダもチェーンには含め、呼び出し時にスキップさせる。
func buildEarningsService(cfg *config.Config, log *slog.Logger, collector metrics.MetricsCollector) (*earnings.Service, error) {
	providerClient := &http.Client{Timeout: cfg.ProviderTimeout}

	finnhub := earnings.NewFinnhubClient(providerClient, cfg.FinnhubAPIKey)
	providers := []earnings.CalendarProvider{
		finnhub,
		earnings.NewFMPClient(providerClient, cfg.FMPAPIKey),
		earnings.NewAlphaVantageClient(providerClient, cfg.AlphaVantageAPIKey),
	}

	// プロフィール参照はFinnhubのみ対応
	var profiles *earnings.ProfileLookup
	if finnhub.Configured() {
		limiter := throttle.New(throttle.Config{
			MaxInFlight: cfg.EnrichMaxConcurrent,
			Interval:    cfg.EnrichInterval,
			Burst:       1,
		})
		profiles = earnings.NewProfileLookup(finnhub, earnings.NewProfileCache(), limiter, log, collector)
	}

	pool, err := earnings.DefaultMockCompanies()
	if err != nil {
		return nil, err
	}

	return earnings.NewService(
		providers,
		profiles,
		earnings.NewMockGenerator(pool, nil),
		log,
		collector,
		earnings.ServiceConfig{
			MaxEnrichSymbols: cfg.EnrichMaxSymbols,
			Timeout:          cfg.EarningsTimeout,
		},
	), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 決算カレンダー
	earningsService, err := buildEarningsService(cfg, log, collector)
	if err != nil {
		return fmt.Errorf("failed to build earnings service: %w", err)
	}

	// 4. トレンドリスト
	listRepo := repository.NewPostgresListRepo(db)
	guard := security.NewURLGuard(security.DefaultFeedHosts...)
	feedFetcher := postfeed.NewFetcher(
		guard.Client(cfg.FeedTimeout),
		guard,
		security.NewPostSanitizer(),
		log,
		cfg.FeedMaxSize,
	)
	listService := trending.NewService(listRepo, feedFetcher, log, collector)

	// 5. ルーターの構築
	// RATE_LIMIT_GENERALはreq/min単位
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Collector:         collector,
		DB:                db,
		MetricsHandler:    metrics.Handler(reg),
		EarningsService:   earningsService,
		EarningsConfig:    handler.EarningsHandlerConfig{DefaultRangeDays: cfg.DefaultRangeDays},
		ListService:       listService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	log.Info("providers configured",
		slog.Bool("finnhub", cfg.FinnhubAPIKey != ""),
		slog.Bool("fmp", cfg.FMPAPIKey != ""),
		slog.Bool("alphavantage", cfg.AlphaVantageAPIKey != ""),
	)

	return serveHTTP(ctx, server, log)
}

// writeTimeout は決算カレンダーが期限いっぱいまでかかっても応答を書き切れる書き込みタイムアウトを返す。
func writeTimeout(cfg *config.Config) time.Duration {
	return max(30*time.Second, cfg.EarningsTimeout+writeTimeoutMargin)
}

// serveHTTP はサーバーを起動し、ctxのキャンセルまたはリッスンエラーまでブロックする。
func serveHTTP(ctx context.Context, server *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downが0の場合は未適用のマイグレーションをすべて適用し、正の場合はその段数だけロールバックする。
func runMigrate(cfg *config.Config, log *slog.Logger, down int) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("down", down),
	)

	if down > 0 {
		if err := database.RollbackMigrations(cfg.DatabaseURL, down); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	log.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、200以外はエラーとする。
func runHealthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://***@" + u.Host + u.Path
}

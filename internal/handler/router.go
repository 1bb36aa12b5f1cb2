package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/kolboard/internal/metrics"
	"github.com/hitoshi/kolboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Collector         metrics.MetricsCollector

	// ヘルスチェック・メトリクス
	DB             Pinger
	MetricsHandler http.Handler

	// 決算カレンダー
	EarningsService EarningsServiceInterface
	EarningsConfig  EarningsHandlerConfig

	// トレンドリスト
	ListService ListServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → RealIP → Logging → SecurityHeaders → CORS → RateLimit
//
// /health と /metrics はレート制限の対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.DB, deps.Logger)
	earningsHandler := NewEarningsHandler(deps.EarningsService, deps.EarningsConfig, deps.Logger)
	listHandler := NewListHandler(deps.ListService, deps.Logger)

	// --- 運用向けルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/earnings", earningsHandler.GetCalendar)

		r.Route("/creators", func(r chi.Router) {
			r.Get("/", listHandler.ListCreators)
			r.Get("/{id}/posts", listHandler.ListCreatorPosts)
		})
		r.Get("/tickers", listHandler.ListTickers)
		r.Get("/topics", listHandler.ListTopics)
	})

	return r
}

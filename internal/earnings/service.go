package earnings

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/kolboard/internal/metrics"
	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/throttle"
)

// SourceMock はモックデータで応答したことを示すソース名。
const SourceMock = "mock"

// ServiceConfig は決算カレンダーサービスの設定。
type ServiceConfig struct {
	// MaxEnrichSymbols は1リクエストでプロフィールを参照する最大銘柄数（デフォルト: 20）。
	MaxEnrichSymbols int
	// Timeout はチェーン全体（エンリッチメントを含む）の所要時間の上限（デフォルト: 20秒）。
	// 期限を過ぎると残りのプロバイダを試さずにモックへ切り替え、エンリッチメントは打ち切る。
	Timeout time.Duration
}

// DefaultServiceConfig はデフォルトの設定を返す。
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxEnrichSymbols: 20,
		Timeout:          20 * time.Second,
	}
}

// Result は決算カレンダー取得の結果。
type Result struct {
	Events []model.EarningsEvent
	// Source は採用したプロバイダ名。モックの場合はSourceMock。
	Source string
	// Enriched はエンリッチメントを実行したかどうか。
	Enriched bool
}

// Service は複数プロバイダのフォールバックチェーンで決算カレンダーを取得する。
// 呼び出し元にエラーを返すことはなく、常にイベント一覧（モックを含む）を返す。
type Service struct {
	providers      []CalendarProvider
	symbolProvider SymbolCalendarProvider
	symbolIndex    int
	profiles       *ProfileLookup
	mock           *MockGenerator
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	config         ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
// providersは優先順に並べる。profilesがnilの場合はエンリッチメントを行わない。
// 銘柄指定検索には、providersのうちSymbolCalendarProviderを実装する最初のものを使用する。
func NewService(
	providers []CalendarProvider,
	profiles *ProfileLookup,
	mock *MockGenerator,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	def := DefaultServiceConfig()
	if config.MaxEnrichSymbols <= 0 {
		config.MaxEnrichSymbols = def.MaxEnrichSymbols
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	s := &Service{
		providers:   providers,
		symbolIndex: -1,
		profiles:    profiles,
		mock:        mock,
		logger:      logger,
		metrics:     collector,
		config:      config,
	}
	for i, p := range providers {
		if sp, ok := p.(SymbolCalendarProvider); ok {
			s.symbolProvider = sp
			s.symbolIndex = i
			break
		}
	}
	return s
}

// Calendar は日付範囲の決算イベントを取得する。
// プロバイダを優先順に試行し、最初に空でない結果を返したものを採用する。
// すべて失敗した場合はモックデータを日付昇順で返す。
// enrichがtrueかつプロフィール参照が設定されている場合、採用結果を企業プロフィールで補完する。
func (s *Service) Calendar(ctx context.Context, r model.DateRange, enrich bool) Result {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	res := s.collect(ctx, r, -1)
	if enrich && res.Source != SourceMock {
		res.Enriched = s.enrich(ctx, res.Events)
	}
	return res
}

// CalendarForSymbol は指定銘柄の決算イベントを取得する。
// 銘柄指定に対応したプロバイダが設定されていればそれを直接呼び出し、
// そうでなければ（または結果が得られなければ）範囲検索の結果を銘柄で絞り込む。
// 銘柄指定で問い合わせ済みのプロバイダは範囲検索では再度呼び出さない。
func (s *Service) CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange, enrich bool) Result {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	symbol = normalizeSymbol(symbol)

	var res Result
	asked := -1
	if sp := s.symbolProvider; sp != nil && sp.Configured() {
		asked = s.symbolIndex
		start := time.Now()
		events, err := sp.CalendarForSymbol(ctx, symbol, r)
		s.metrics.RecordProviderLatency(sp.Name(), time.Since(start))
		switch {
		case err != nil:
			s.metrics.RecordProviderAttempt(sp.Name(), metrics.OutcomeError)
			s.logger.Warn("銘柄指定の決算カレンダー取得に失敗しました",
				slog.String("provider", sp.Name()),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		case len(filterSymbol(events, symbol)) == 0:
			s.metrics.RecordProviderAttempt(sp.Name(), metrics.OutcomeEmpty)
		default:
			s.metrics.RecordProviderAttempt(sp.Name(), metrics.OutcomeAccepted)
			res = Result{Events: filterSymbol(events, symbol), Source: sp.Name()}
		}
	}

	if res.Source == "" {
		res = s.collect(ctx, r, asked)
		res.Events = filterSymbol(res.Events, symbol)
	}

	if enrich && res.Source != SourceMock {
		res.Enriched = s.enrich(ctx, res.Events)
	}
	return res
}

// collect はフォールバックチェーンを実行する。skipは問い合わせ済みのプロバイダ位置（なければ-1）。
// ctxの期限を過ぎた後は残りのプロバイダを呼び出さずにモックへ進む。
func (s *Service) collect(ctx context.Context, r model.DateRange, skip int) Result {
	for i, p := range s.providers {
		if i == skip {
			continue
		}
		name := p.Name()
		if !p.Configured() {
			s.metrics.RecordProviderAttempt(name, metrics.OutcomeSkipped)
			continue
		}
		if err := ctx.Err(); err != nil {
			s.metrics.RecordProviderAttempt(name, metrics.OutcomeSkipped)
			s.logger.Warn("決算カレンダー取得の期限を過ぎたためプロバイダを省略します",
				slog.String("provider", name),
				slog.String("error", err.Error()),
			)
			continue
		}

		start := time.Now()
		events, err := p.Calendar(ctx, r)
		s.metrics.RecordProviderLatency(name, time.Since(start))

		if err != nil {
			s.metrics.RecordProviderAttempt(name, metrics.OutcomeError)
			s.logger.Warn("決算カレンダープロバイダが利用できません",
				slog.String("provider", name),
				slog.String("from", r.From),
				slog.String("to", r.To),
				slog.String("error", err.Error()),
			)
			continue
		}

		if !p.SupportsDateRange() {
			events = filterRange(events, r)
		}

		if len(events) == 0 {
			s.metrics.RecordProviderAttempt(name, metrics.OutcomeEmpty)
			s.logger.Info("決算カレンダープロバイダが空の結果を返しました",
				slog.String("provider", name),
				slog.String("from", r.From),
				slog.String("to", r.To),
			)
			continue
		}

		s.metrics.RecordProviderAttempt(name, metrics.OutcomeAccepted)
		s.logger.Info("決算カレンダーを取得しました",
			slog.String("provider", name),
			slog.Int("event_count", len(events)),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return Result{Events: events, Source: name}
	}

	s.metrics.RecordMockFallback()
	events := s.mock.Generate(r)
	s.logger.Warn("全プロバイダが利用できないためモックデータを返します",
		slog.String("from", r.From),
		slog.String("to", r.To),
		slog.Int("event_count", len(events)),
	)
	return Result{Events: events, Source: SourceMock}
}

// enrich は先頭MaxEnrichSymbols銘柄のプロフィールを参照し、
// キャッシュ済みプロフィールを持つすべてのイベントに反映する。
// エンリッチメントを実行した場合はtrueを返す。
func (s *Service) enrich(ctx context.Context, events []model.EarningsEvent) bool {
	if s.profiles == nil || len(events) == 0 {
		return false
	}
	if ctx.Err() != nil {
		s.logger.Warn("決算カレンダー取得の期限を過ぎたためエンリッチメントを省略します",
			slog.Int("total_events", len(events)),
		)
		return false
	}

	symbols := distinctSymbols(events, s.config.MaxEnrichSymbols)

	start := time.Now()
	throttle.ForEach(ctx, symbols, func(ctx context.Context, symbol string) {
		s.profiles.Lookup(ctx, symbol)
	})

	enriched := 0
	cache := s.profiles.Cache()
	for i := range events {
		if p, ok := cache.Get(events[i].Symbol); ok && p != nil {
			events[i].ApplyProfile(p)
			enriched++
		}
	}

	s.logger.Info("決算イベントをエンリッチメントしました",
		slog.Int("lookup_symbols", len(symbols)),
		slog.Int("enriched_events", enriched),
		slog.Int("total_events", len(events)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return true
}

// distinctSymbols は出現順に重複を除いた銘柄を最大limit件返す。
func distinctSymbols(events []model.EarningsEvent, limit int) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, e := range events {
		if len(symbols) >= limit {
			break
		}
		key := normalizeSymbol(e.Symbol)
		if seen[key] {
			continue
		}
		seen[key] = true
		symbols = append(symbols, key)
	}
	return symbols
}

func filterRange(events []model.EarningsEvent, r model.DateRange) []model.EarningsEvent {
	filtered := make([]model.EarningsEvent, 0, len(events))
	for _, e := range events {
		if r.Contains(e.Date) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func filterSymbol(events []model.EarningsEvent, symbol string) []model.EarningsEvent {
	filtered := make([]model.EarningsEvent, 0, len(events))
	for _, e := range events {
		if normalizeSymbol(e.Symbol) == symbol {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

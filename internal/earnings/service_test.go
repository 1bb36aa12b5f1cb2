package earnings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/throttle"
)

// --- モック定義 ---

// mockProvider はCalendarProviderのモック。
type mockProvider struct {
	name         string
	configured   bool
	ranged       bool
	calls        atomic.Int32
	calendarFunc func(ctx context.Context, r model.DateRange) ([]model.EarningsEvent, error)
}

func (m *mockProvider) Name() string            { return m.name }
func (m *mockProvider) Configured() bool        { return m.configured }
func (m *mockProvider) SupportsDateRange() bool { return m.ranged }

func (m *mockProvider) Calendar(ctx context.Context, r model.DateRange) ([]model.EarningsEvent, error) {
	m.calls.Add(1)
	if m.calendarFunc != nil {
		return m.calendarFunc(ctx, r)
	}
	return nil, nil
}

// mockSymbolProvider は銘柄指定に対応したプロバイダのモック。
type mockSymbolProvider struct {
	*mockProvider
	symbolCalls  atomic.Int32
	symbolFunc   func(ctx context.Context, symbol string, r model.DateRange) ([]model.EarningsEvent, error)
	lastSymbolMu sync.Mutex
	lastSymbol   string
}

func (m *mockSymbolProvider) CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange) ([]model.EarningsEvent, error) {
	m.symbolCalls.Add(1)
	m.lastSymbolMu.Lock()
	m.lastSymbol = symbol
	m.lastSymbolMu.Unlock()
	if m.symbolFunc != nil {
		return m.symbolFunc(ctx, symbol, r)
	}
	return nil, nil
}

// mockFetcher はProfileFetcherのモック。銘柄ごとの呼び出し回数を記録する。
type mockFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	fetchFunc func(ctx context.Context, symbol string) (*model.CompanyProfile, error)
}

func newMockFetcher(fn func(ctx context.Context, symbol string) (*model.CompanyProfile, error)) *mockFetcher {
	return &mockFetcher{calls: make(map[string]int), fetchFunc: fn}
}

func (m *mockFetcher) FetchProfile(ctx context.Context, symbol string) (*model.CompanyProfile, error) {
	m.mu.Lock()
	m.calls[symbol]++
	m.mu.Unlock()
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, symbol)
	}
	return nil, nil
}

func (m *mockFetcher) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockFetcher) count(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// --- ヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLimiter() *throttle.Limiter {
	return throttle.New(throttle.Config{MaxInFlight: 3, Interval: -1})
}

func newTestMock(t *testing.T) *MockGenerator {
	t.Helper()
	pool, err := DefaultMockCompanies()
	if err != nil {
		t.Fatalf("DefaultMockCompanies がエラーを返した: %v", err)
	}
	return NewMockGenerator(pool, rand.New(rand.NewPCG(1, 2)))
}

func newTestService(t *testing.T, providers []CalendarProvider, lookup *ProfileLookup) (*Service, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	svc := NewService(providers, lookup, newTestMock(t), newTestLogger(&buf), nil, DefaultServiceConfig())
	return svc, &buf
}

func event(date, symbol string) model.EarningsEvent {
	return model.EarningsEvent{Date: date, Symbol: symbol, Time: model.EventTimeUnknown}
}

func returning(events ...model.EarningsEvent) func(context.Context, model.DateRange) ([]model.EarningsEvent, error) {
	return func(context.Context, model.DateRange) ([]model.EarningsEvent, error) {
		return events, nil
	}
}

func failing(err error) func(context.Context, model.DateRange) ([]model.EarningsEvent, error) {
	return func(context.Context, model.DateRange) ([]model.EarningsEvent, error) {
		return nil, err
	}
}

// --- フォールバックチェーン ---

func TestService_Calendar_FirstProviderWins(t *testing.T) {
	eps := decimal.NewNullDecimal(decimal.RequireFromString("1.5"))
	first := &mockProvider{name: "finnhub", configured: true, ranged: true,
		calendarFunc: func(context.Context, model.DateRange) ([]model.EarningsEvent, error) {
			return []model.EarningsEvent{{Date: "2025-01-10", Symbol: "AAPL", EPSEstimate: eps, Time: model.EventTimeAfterClose}}, nil
		}}
	second := &mockProvider{name: "fmp", configured: true, ranged: true}
	third := &mockProvider{name: "alphavantage", configured: true}

	svc, _ := newTestService(t, []CalendarProvider{first, second, third}, nil)

	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, true)

	if res.Source != "finnhub" {
		t.Errorf("Source = %s, want finnhub", res.Source)
	}
	if len(res.Events) != 1 || res.Events[0].Symbol != "AAPL" {
		t.Fatalf("イベント = %+v, want AAPLの1件", res.Events)
	}
	if res.Events[0].EPSEstimate.Decimal.String() != "1.5" {
		t.Errorf("EPSEstimate = %s, want 1.5", res.Events[0].EPSEstimate.Decimal.String())
	}
	if second.calls.Load() != 0 || third.calls.Load() != 0 {
		t.Errorf("後続プロバイダが呼び出された: fmp=%d, alphavantage=%d", second.calls.Load(), third.calls.Load())
	}
	// プロフィール参照が未設定のためエンリッチメントされない
	if res.Enriched {
		t.Error("プロフィール参照未設定でEnriched=trueになった")
	}
	if res.Events[0].Logo != nil || res.Events[0].Industry != nil {
		t.Error("エンリッチメント項目が設定された")
	}
}

func TestService_Calendar_FallbackOrder(t *testing.T) {
	tests := []struct {
		name       string
		first      func(context.Context, model.DateRange) ([]model.EarningsEvent, error)
		second     func(context.Context, model.DateRange) ([]model.EarningsEvent, error)
		wantSource string
		wantCalls  [3]int32
	}{
		{
			name:       "第1が失敗したら第2を採用",
			first:      failing(errors.New("503")),
			second:     returning(event("2025-01-11", "MSFT")),
			wantSource: "fmp",
			wantCalls:  [3]int32{1, 1, 0},
		},
		{
			name:       "第1が空なら第2を採用",
			first:      returning(),
			second:     returning(event("2025-01-11", "MSFT")),
			wantSource: "fmp",
			wantCalls:  [3]int32{1, 1, 0},
		},
		{
			name:       "第1と第2が失敗したら第3を採用",
			first:      failing(errors.New("timeout")),
			second:     failing(errors.New("invalid key")),
			wantSource: "alphavantage",
			wantCalls:  [3]int32{1, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: tt.first}
			p2 := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: tt.second}
			p3 := &mockProvider{name: "alphavantage", configured: true, calendarFunc: returning(event("2025-01-12", "IBM"))}

			svc, _ := newTestService(t, []CalendarProvider{p1, p2, p3}, nil)
			res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

			if res.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", res.Source, tt.wantSource)
			}
			got := [3]int32{p1.calls.Load(), p2.calls.Load(), p3.calls.Load()}
			if got != tt.wantCalls {
				t.Errorf("呼び出し回数 = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestService_Calendar_UnconfiguredProvidersAreSkipped(t *testing.T) {
	p1 := &mockProvider{name: "finnhub", configured: false, ranged: true}
	p2 := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: returning(event("2025-01-10", "NVDA"))}

	svc, _ := newTestService(t, []CalendarProvider{p1, p2}, nil)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if p1.calls.Load() != 0 {
		t.Errorf("未設定プロバイダが %d 回呼び出された", p1.calls.Load())
	}
	if res.Source != "fmp" {
		t.Errorf("Source = %s, want fmp", res.Source)
	}
}

func TestService_Calendar_UnrangedProviderIsFilteredLocally(t *testing.T) {
	p1 := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: failing(errors.New("down"))}
	p2 := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: failing(errors.New("down"))}
	p3 := &mockProvider{name: "alphavantage", configured: true, ranged: false, calendarFunc: returning(
		event("2025-01-05", "EARLY"),
		event("2025-01-10", "IN1"),
		event("2025-01-12", "IN2"),
		event("2025-02-01", "LATE"),
	)}

	svc, _ := newTestService(t, []CalendarProvider{p1, p2, p3}, nil)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if res.Source != "alphavantage" {
		t.Fatalf("Source = %s, want alphavantage", res.Source)
	}
	if len(res.Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(res.Events))
	}
	for _, e := range res.Events {
		if e.Date < "2025-01-10" || e.Date > "2025-01-12" {
			t.Errorf("範囲外のイベントが含まれる: %+v", e)
		}
	}
}

func TestService_Calendar_UnrangedOutOfRangeOnlyFallsToMock(t *testing.T) {
	p3 := &mockProvider{name: "alphavantage", configured: true, ranged: false, calendarFunc: returning(event("2025-03-01", "LATE"))}

	svc, _ := newTestService(t, []CalendarProvider{p3}, nil)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if res.Source != SourceMock {
		t.Errorf("Source = %s, want mock", res.Source)
	}
}

func TestService_Calendar_MockFloor(t *testing.T) {
	providers := []CalendarProvider{
		&mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: failing(errors.New("down"))},
		&mockProvider{name: "fmp", configured: false, ranged: true},
		&mockProvider{name: "alphavantage", configured: true, calendarFunc: returning()},
	}

	var lookups atomic.Int32
	fetcher := newMockFetcher(func(context.Context, string) (*model.CompanyProfile, error) {
		lookups.Add(1)
		return &model.CompanyProfile{Name: "X"}, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	svc, buf := newTestService(t, providers, lookup)
	r := model.DateRange{From: "2025-01-10", To: "2025-01-12"}
	res := svc.Calendar(context.Background(), r, true)

	if res.Source != SourceMock {
		t.Fatalf("Source = %s, want mock", res.Source)
	}
	if len(res.Events) == 0 {
		t.Fatal("モックデータが空")
	}

	pool := make(map[string]bool)
	for _, s := range svc.mock.Symbols() {
		pool[s] = true
	}
	for i, e := range res.Events {
		if !r.Contains(e.Date) {
			t.Errorf("範囲外の日付: %s", e.Date)
		}
		if !pool[e.Symbol] {
			t.Errorf("プール外の銘柄: %s", e.Symbol)
		}
		if i > 0 && res.Events[i-1].Date > e.Date {
			t.Errorf("日付昇順でない: %s > %s", res.Events[i-1].Date, e.Date)
		}
	}

	// モックはエンリッチメントしない
	if lookups.Load() != 0 || res.Enriched {
		t.Errorf("モックに対してプロフィール参照が %d 回行われた", lookups.Load())
	}
	if !bytes.Contains(buf.Bytes(), []byte("モックデータ")) {
		t.Error("モックフォールバックのログが出力されていない")
	}
}

func TestService_Calendar_NoProviders(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-10"}, false)

	if res.Source != SourceMock || len(res.Events) == 0 {
		t.Errorf("結果 = %+v, want 非空のモック", res)
	}
}

// --- エンリッチメント ---

func TestService_Calendar_EnrichmentIsIdempotent(t *testing.T) {
	provider := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: returning(
		event("2025-01-10", "AAPL"),
		event("2025-01-11", "AAPL"),
		event("2025-01-11", "ZZZZ"),
	)}
	fetcher := newMockFetcher(func(_ context.Context, symbol string) (*model.CompanyProfile, error) {
		if symbol == "AAPL" {
			return &model.CompanyProfile{Ticker: "AAPL", Name: "Apple Inc", Logo: "https://logo/aapl.png", Industry: "Technology", MarketCapitalization: 3500000}, nil
		}
		return nil, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	svc, _ := newTestService(t, []CalendarProvider{provider}, lookup)
	r := model.DateRange{From: "2025-01-10", To: "2025-01-12"}

	for i := range 2 {
		res := svc.Calendar(context.Background(), r, true)
		if !res.Enriched {
			t.Fatalf("%d回目: Enriched=false", i+1)
		}
		for _, e := range res.Events {
			switch e.Symbol {
			case "AAPL":
				if e.Logo == nil || *e.Logo != "https://logo/aapl.png" {
					t.Errorf("%d回目: AAPLのLogoが設定されていない", i+1)
				}
				if e.CompanyName != "Apple Inc" {
					t.Errorf("%d回目: CompanyName = %s, want Apple Inc", i+1, e.CompanyName)
				}
			case "ZZZZ":
				if e.Logo != nil || e.Industry != nil {
					t.Errorf("%d回目: 該当なし銘柄にエンリッチメントが適用された", i+1)
				}
			}
		}
	}

	if fetcher.count("AAPL") != 1 {
		t.Errorf("AAPLの取得回数 = %d, want 1", fetcher.count("AAPL"))
	}
	if fetcher.count("ZZZZ") != 1 {
		t.Errorf("ZZZZの取得回数 = %d, want 1（該当なしもキャッシュされる）", fetcher.count("ZZZZ"))
	}
}

func TestService_Calendar_EnrichmentCap(t *testing.T) {
	var events []model.EarningsEvent
	for i := range 25 {
		events = append(events, event("2025-01-10", fmt.Sprintf("S%02d", i)))
	}
	provider := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: returning(events...)}
	fetcher := newMockFetcher(func(_ context.Context, symbol string) (*model.CompanyProfile, error) {
		return &model.CompanyProfile{Ticker: symbol, Industry: "Industry " + symbol}, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	svc, _ := newTestService(t, []CalendarProvider{provider}, lookup)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-10"}, true)

	if fetcher.total() != 20 {
		t.Errorf("プロフィール取得回数 = %d, want 20", fetcher.total())
	}
	if len(res.Events) != 25 {
		t.Fatalf("イベント数 = %d, want 25（上限外も返す）", len(res.Events))
	}
	for i, e := range res.Events {
		enriched := e.Industry != nil
		if i < 20 && !enriched {
			t.Errorf("%s がエンリッチメントされていない", e.Symbol)
		}
		if i >= 20 && enriched {
			t.Errorf("%s が上限を超えてエンリッチメントされた", e.Symbol)
		}
	}
}

func TestService_Calendar_EnrichmentFailureIsSoft(t *testing.T) {
	provider := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: returning(
		event("2025-01-10", "AAPL"),
		event("2025-01-10", "MSFT"),
	)}
	fetcher := newMockFetcher(func(_ context.Context, symbol string) (*model.CompanyProfile, error) {
		if symbol == "MSFT" {
			return nil, errors.New("429 too many requests")
		}
		return &model.CompanyProfile{Ticker: symbol, Industry: "Technology"}, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	svc, _ := newTestService(t, []CalendarProvider{provider}, lookup)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-10"}, true)

	if len(res.Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(res.Events))
	}
	for _, e := range res.Events {
		if e.Symbol == "AAPL" && e.Industry == nil {
			t.Error("AAPLがエンリッチメントされていない")
		}
		if e.Symbol == "MSFT" && e.Industry != nil {
			t.Error("取得失敗したMSFTにエンリッチメントが適用された")
		}
	}
}

func TestService_Calendar_EnrichDisabled(t *testing.T) {
	provider := &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: returning(event("2025-01-10", "AAPL"))}
	fetcher := newMockFetcher(nil)
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	svc, _ := newTestService(t, []CalendarProvider{provider}, lookup)
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-10"}, false)

	if res.Enriched || fetcher.total() != 0 {
		t.Errorf("enrich=falseでプロフィール参照が %d 回行われた", fetcher.total())
	}
}

// --- 期限 ---

func TestService_Calendar_TimeoutFallsToMock(t *testing.T) {
	blocking := func(ctx context.Context, _ model.DateRange) ([]model.EarningsEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	providers := []*mockProvider{
		{name: "finnhub", configured: true, ranged: true, calendarFunc: blocking},
		{name: "fmp", configured: true, ranged: true, calendarFunc: blocking},
		{name: "alphavantage", configured: true, ranged: false, calendarFunc: blocking},
	}
	chain := make([]CalendarProvider, 0, len(providers))
	for _, p := range providers {
		chain = append(chain, p)
	}

	var buf bytes.Buffer
	svc := NewService(chain, nil, newTestMock(t), newTestLogger(&buf), nil, ServiceConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-12"}, true)
	elapsed := time.Since(start)

	if res.Source != SourceMock {
		t.Errorf("Source = %s, want mock", res.Source)
	}
	if len(res.Events) == 0 {
		t.Error("モックのイベントが返されるべき")
	}
	if elapsed > 2*time.Second {
		t.Errorf("所要時間 = %v, 期限で打ち切られるべき", elapsed)
	}
	if providers[0].calls.Load() != 1 {
		t.Errorf("先頭プロバイダの呼び出し回数 = %d, want 1", providers[0].calls.Load())
	}
	for _, p := range providers[1:] {
		if p.calls.Load() != 0 {
			t.Errorf("期限後に %s が呼び出された", p.name)
		}
	}
}

func TestService_Calendar_TimeoutSkipsEnrichment(t *testing.T) {
	slow := &mockProvider{name: "finnhub", configured: true, ranged: true,
		calendarFunc: func(ctx context.Context, _ model.DateRange) ([]model.EarningsEvent, error) {
			<-ctx.Done()
			return []model.EarningsEvent{event("2025-01-10", "AAPL")}, nil
		},
	}
	fetcher := newMockFetcher(nil)
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	var buf bytes.Buffer
	svc := NewService([]CalendarProvider{slow}, lookup, newTestMock(t), newTestLogger(&buf), nil, ServiceConfig{Timeout: 20 * time.Millisecond})
	res := svc.Calendar(context.Background(), model.DateRange{From: "2025-01-10", To: "2025-01-10"}, true)

	if res.Source != "finnhub" {
		t.Errorf("Source = %s, want finnhub", res.Source)
	}
	if res.Enriched {
		t.Error("期限後はエンリッチメントを省略すべき")
	}
	if fetcher.total() != 0 {
		t.Errorf("プロフィール取得回数 = %d, want 0", fetcher.total())
	}
}

func TestNewService_DefaultTimeout(t *testing.T) {
	svc := NewService(nil, nil, newTestMock(t), slog.New(slog.DiscardHandler), nil, ServiceConfig{})
	if svc.config.Timeout != DefaultServiceConfig().Timeout {
		t.Errorf("Timeout = %v, want %v", svc.config.Timeout, DefaultServiceConfig().Timeout)
	}
}

// --- 銘柄指定 ---

func TestService_CalendarForSymbol_UsesSymbolProvider(t *testing.T) {
	sp := &mockSymbolProvider{
		mockProvider: &mockProvider{name: "finnhub", configured: true, ranged: true},
		symbolFunc: func(_ context.Context, symbol string, _ model.DateRange) ([]model.EarningsEvent, error) {
			return []model.EarningsEvent{event("2025-01-11", symbol)}, nil
		},
	}
	fmp := &mockProvider{name: "fmp", configured: true, ranged: true}

	svc, _ := newTestService(t, []CalendarProvider{sp, fmp}, nil)
	res := svc.CalendarForSymbol(context.Background(), " msft ", model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if res.Source != "finnhub" {
		t.Errorf("Source = %s, want finnhub", res.Source)
	}
	if sp.lastSymbol != "MSFT" {
		t.Errorf("送信された銘柄 = %q, want MSFT", sp.lastSymbol)
	}
	if sp.calls.Load() != 0 || fmp.calls.Load() != 0 {
		t.Error("範囲検索が呼び出された")
	}
	if len(res.Events) != 1 || res.Events[0].Symbol != "MSFT" {
		t.Errorf("イベント = %+v", res.Events)
	}
}

func TestService_CalendarForSymbol_FallsBackToRangeFilter(t *testing.T) {
	sp := &mockSymbolProvider{
		mockProvider: &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: failing(errors.New("down"))},
		symbolFunc: func(context.Context, string, model.DateRange) ([]model.EarningsEvent, error) {
			return nil, errors.New("down")
		},
	}
	fmp := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: returning(
		event("2025-01-10", "AAPL"),
		event("2025-01-11", "MSFT"),
		event("2025-01-12", "AAPL"),
	)}

	svc, _ := newTestService(t, []CalendarProvider{sp, fmp}, nil)
	res := svc.CalendarForSymbol(context.Background(), "AAPL", model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if res.Source != "fmp" {
		t.Errorf("Source = %s, want fmp", res.Source)
	}
	if len(res.Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(res.Events))
	}
	for _, e := range res.Events {
		if e.Symbol != "AAPL" {
			t.Errorf("他銘柄が含まれる: %s", e.Symbol)
		}
	}
}

func TestService_CalendarForSymbol_EmptySymbolResultDoesNotRequeryProvider(t *testing.T) {
	sp := &mockSymbolProvider{
		mockProvider: &mockProvider{name: "finnhub", configured: true, ranged: true, calendarFunc: returning(event("2025-01-10", "AAPL"))},
	}
	fmp := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: returning(
		event("2025-01-10", "AAPL"),
		event("2025-01-11", "MSFT"),
	)}

	svc, _ := newTestService(t, []CalendarProvider{sp, fmp}, nil)
	res := svc.CalendarForSymbol(context.Background(), "AAPL", model.DateRange{From: "2025-01-10", To: "2025-01-12"}, false)

	if sp.symbolCalls.Load() != 1 {
		t.Errorf("銘柄指定の呼び出し回数 = %d, want 1", sp.symbolCalls.Load())
	}
	if sp.calls.Load() != 0 {
		t.Errorf("銘柄指定で問い合わせ済みのプロバイダに範囲検索が %d 回送信された", sp.calls.Load())
	}
	if res.Source != "fmp" || len(res.Events) != 1 || res.Events[0].Symbol != "AAPL" {
		t.Errorf("結果 = %+v", res)
	}
}

func TestService_CalendarForSymbol_UnconfiguredSymbolProvider(t *testing.T) {
	sp := &mockSymbolProvider{mockProvider: &mockProvider{name: "finnhub", configured: false, ranged: true}}
	fmp := &mockProvider{name: "fmp", configured: true, ranged: true, calendarFunc: returning(event("2025-01-10", "TSLA"))}

	svc, _ := newTestService(t, []CalendarProvider{sp, fmp}, nil)
	res := svc.CalendarForSymbol(context.Background(), "TSLA", model.DateRange{From: "2025-01-10", To: "2025-01-10"}, false)

	if sp.symbolCalls.Load() != 0 {
		t.Error("未設定の銘柄指定プロバイダが呼び出された")
	}
	if res.Source != "fmp" || len(res.Events) != 1 {
		t.Errorf("結果 = %+v", res)
	}
}

func TestDistinctSymbols(t *testing.T) {
	events := []model.EarningsEvent{
		event("2025-01-10", "AAPL"),
		event("2025-01-10", "aapl"),
		event("2025-01-11", "MSFT"),
		event("2025-01-11", "NVDA"),
	}

	got := distinctSymbols(events, 2)
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("distinctSymbols = %v, want [AAPL MSFT]", got)
	}
}

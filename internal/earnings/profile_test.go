package earnings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/throttle"
)

func TestProfileCache_GetUnknown(t *testing.T) {
	c := NewProfileCache()
	if _, ok := c.Get("AAPL"); ok {
		t.Error("未参照の銘柄でok=trueが返された")
	}
}

func TestProfileLookup_CachesNegativeResult(t *testing.T) {
	fetcher := newMockFetcher(nil)
	cache := NewProfileCache()
	lookup := NewProfileLookup(fetcher, cache, newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	for range 3 {
		if p := lookup.Lookup(context.Background(), "ZZZZ"); p != nil {
			t.Errorf("プロフィール = %+v, want nil", p)
		}
	}

	if fetcher.count("ZZZZ") != 1 {
		t.Errorf("取得回数 = %d, want 1", fetcher.count("ZZZZ"))
	}
	p, ok := cache.Get("zzzz")
	if !ok || p != nil {
		t.Errorf("キャッシュ = (%v, %v), want (nil, true)", p, ok)
	}
}

func TestProfileLookup_ErrorIsCachedAsNotFound(t *testing.T) {
	fetcher := newMockFetcher(func(context.Context, string) (*model.CompanyProfile, error) {
		return nil, errors.New("502 bad gateway")
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	lookup.Lookup(context.Background(), "AAPL")
	lookup.Lookup(context.Background(), "AAPL")

	if fetcher.count("AAPL") != 1 {
		t.Errorf("取得回数 = %d, want 1", fetcher.count("AAPL"))
	}
}

func TestProfileLookup_CancelledIsNotCached(t *testing.T) {
	fetcher := newMockFetcher(func(ctx context.Context, _ string) (*model.CompanyProfile, error) {
		return nil, ctx.Err()
	})
	cache := NewProfileCache()
	lookup := NewProfileLookup(fetcher, cache, newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lookup.Lookup(ctx, "AAPL")

	if _, ok := cache.Get("AAPL"); ok {
		t.Error("キャンセルされた参照結果がキャッシュされた")
	}
}

func TestProfileLookup_TokenNotAcquiredIsNotCached(t *testing.T) {
	fetcher := newMockFetcher(nil)
	cache := NewProfileCache()
	limiter := throttle.New(throttle.Config{MaxInFlight: 1, Interval: time.Hour, Burst: 1})
	lookup := NewProfileLookup(fetcher, cache, limiter, slog.New(slog.DiscardHandler), nil)

	// 最初の参照でトークンを使い切る
	lookup.Lookup(context.Background(), "AAPL")

	// 次のトークンは期限内に補充されないため、取得せずに諦める
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if p := lookup.Lookup(ctx, "MSFT"); p != nil {
		t.Errorf("プロフィール = %+v, want nil", p)
	}

	if fetcher.count("MSFT") != 0 {
		t.Errorf("取得回数 = %d, want 0", fetcher.count("MSFT"))
	}
	if _, ok := cache.Get("MSFT"); ok {
		t.Error("トークン待機を諦めた銘柄が「該当なし」としてキャッシュされた")
	}
	if _, ok := cache.Get("AAPL"); !ok {
		t.Error("取得済みの銘柄はキャッシュされるべき")
	}
}

func TestProfileLookup_ConcurrentLookupsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	fetcher := newMockFetcher(func(_ context.Context, symbol string) (*model.CompanyProfile, error) {
		<-release
		return &model.CompanyProfile{Ticker: symbol, Name: "Apple Inc"}, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	var wg sync.WaitGroup
	results := make([]*model.CompanyProfile, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = lookup.Lookup(context.Background(), "AAPL")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if fetcher.count("AAPL") != 1 {
		t.Errorf("取得回数 = %d, want 1", fetcher.count("AAPL"))
	}
	for i, p := range results {
		if p == nil || p.Name != "Apple Inc" {
			t.Errorf("results[%d] = %+v", i, p)
		}
	}
}

func TestProfileLookup_RespectsMaxInFlight(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	fetcher := newMockFetcher(func(_ context.Context, symbol string) (*model.CompanyProfile, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &model.CompanyProfile{Ticker: symbol}, nil
	})
	lookup := NewProfileLookup(fetcher, NewProfileCache(), newTestLimiter(), slog.New(slog.DiscardHandler), nil)

	var wg sync.WaitGroup
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			lookup.Lookup(context.Background(), s)
		}(s)
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("同時実行数のピーク = %d, want <= 3", peak)
	}
}

package earnings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/kolboard/internal/metrics"
	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/throttle"
)

// ProfileCache は銘柄ごとの企業プロフィールをプロセス存続期間中保持する。
// 未検出・取得失敗もnilとして保存し、同じ銘柄への再問い合わせを防ぐ。
// エントリは一度書き込まれたら変更・削除されない（銘柄の母集団は有限のため上限なし）。
type ProfileCache struct {
	mu       sync.Mutex
	entries  map[string]*model.CompanyProfile
	inflight map[string]chan struct{}
}

// NewProfileCache は空のProfileCacheを生成する。
func NewProfileCache() *ProfileCache {
	return &ProfileCache{
		entries:  make(map[string]*model.CompanyProfile),
		inflight: make(map[string]chan struct{}),
	}
}

// Get はキャッシュ済みのプロフィールを返す。okがfalseの場合は未参照。
// okがtrueでもプロフィールがnilの場合は「該当なし」として記録済みであることを示す。
func (c *ProfileCache) Get(symbol string) (p *model.CompanyProfile, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok = c.entries[normalizeSymbol(symbol)]
	return p, ok
}

// Len はキャッシュ済みの銘柄数を返す。
func (c *ProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// getOrLoad はキャッシュを参照し、未参照の場合のみloadを呼び出す。
// 同じ銘柄の並行呼び出しは1回のloadにまとめられる。
// loadがstore=falseを返した場合（キャンセル等）は結果を保存しない。
func (c *ProfileCache) getOrLoad(
	ctx context.Context,
	symbol string,
	load func(ctx context.Context) (p *model.CompanyProfile, store bool),
) (*model.CompanyProfile, bool) {
	key := normalizeSymbol(symbol)

	for {
		c.mu.Lock()
		if p, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return p, true
		}
		wait, loading := c.inflight[key]
		if !loading {
			done := make(chan struct{})
			c.inflight[key] = done
			c.mu.Unlock()

			p, store := load(ctx)

			c.mu.Lock()
			delete(c.inflight, key)
			if store {
				c.entries[key] = p
			}
			c.mu.Unlock()
			close(done)
			return p, false
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ProfileLookup はキャッシュとレート制限を介して企業プロフィールを取得する。
type ProfileLookup struct {
	fetcher ProfileFetcher
	cache   *ProfileCache
	limiter *throttle.Limiter
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewProfileLookup はProfileLookupの新しいインスタンスを生成する。
// cacheはテストで状態を検証できるよう外部から注入する。
func NewProfileLookup(
	fetcher ProfileFetcher,
	cache *ProfileCache,
	limiter *throttle.Limiter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *ProfileLookup {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &ProfileLookup{
		fetcher: fetcher,
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		metrics: collector,
	}
}

// Lookup は銘柄のプロフィールを返す。該当なし・取得失敗の場合はnilを返す。
// 外部API呼び出しはキャッシュミス時のみ行い、Limiterで同時実行数と間隔を制限する。
func (l *ProfileLookup) Lookup(ctx context.Context, symbol string) *model.CompanyProfile {
	p, hit := l.cache.getOrLoad(ctx, symbol, func(ctx context.Context) (*model.CompanyProfile, bool) {
		var profile *model.CompanyProfile
		err := l.limiter.Do(ctx, func(ctx context.Context) error {
			var fetchErr error
			profile, fetchErr = l.fetcher.FetchProfile(ctx, symbol)
			return fetchErr
		})

		switch {
		case err == nil && profile == nil:
			l.metrics.RecordProfileLookup(metrics.OutcomeNotFound)
			return nil, true
		case err == nil:
			l.metrics.RecordProfileLookup(metrics.OutcomeMiss)
			return profile, true
		case errors.Is(err, throttle.ErrNotAcquired) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			// 待機打ち切りやリクエスト打ち切りによる失敗は銘柄の性質ではないため記録しない
			return nil, false
		default:
			l.metrics.RecordProfileLookup(metrics.OutcomeError)
			l.logger.Warn("企業プロフィールの取得に失敗しました",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			return nil, true
		}
	})

	if hit {
		l.metrics.RecordProfileLookup(metrics.OutcomeHit)
	}
	return p
}

// Cache は内部のProfileCacheを返す。
func (l *ProfileLookup) Cache() *ProfileCache {
	return l.cache
}

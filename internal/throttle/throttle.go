// Package throttle は外部APIの呼び出しを同時実行数とリクエスト間隔の両面で制限する。
// セマフォで同時実行数の上限を、トークンバケットで最小間隔を保証する。
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotAcquired はスロットまたはトークンを取得できずにfnを実行しなかったことを示す。
// コンテキストの期限までにトークンが補充されない場合は、期限到来前でもこのエラーになる。
var ErrNotAcquired = errors.New("throttle: slot or token not acquired")

// Config はLimiterの設定。
type Config struct {
	// MaxInFlight は同時に実行できる呼び出し数の上限（デフォルト: 3）。
	MaxInFlight int
	// Interval はトークン補充間隔。1トークンにつき1回の呼び出しを許可する（デフォルト: 200ms）。
	Interval time.Duration
	// Burst はトークンバケットの容量（デフォルト: 1）。
	Burst int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		MaxInFlight: 3,
		Interval:    200 * time.Millisecond,
		Burst:       1,
	}
}

// Limiter は同時実行数とリクエストレートを制限する。
// 複数のgoroutineから安全に利用できる。
type Limiter struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// New はLimiterを生成する。0以下の値はデフォルト値で補完する。
// Intervalが負の場合はレート制限を行わない。
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	return &Limiter{
		sem:     make(chan struct{}, cfg.MaxInFlight),
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

// Do はスロットとトークンを取得してからfnを実行する。
// 取得できなかった場合はfnを実行せず、ErrNotAcquiredをラップしたエラーを返す。
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
	}
	defer func() { <-l.sem }()

	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAcquired, err)
	}

	return fn(ctx)
}

// ForEach はitemsの各要素に対してfnを並列実行し、すべての完了を待つ。
// 外部呼び出しの制限はfn内でLimiter.Doを通して行う（キャッシュヒット時はトークンを消費しない）。
// fnのエラーは呼び出し元で扱う前提のため、ここでは集約しない。
func ForEach[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T)) {
	var wg sync.WaitGroup

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			fn(ctx, it)
		}(item)
	}

	wg.Wait()
}

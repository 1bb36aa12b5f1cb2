// Package pagination はタブ（ソース）ごとに独立したページング状態を管理する。
// タブの切り替えはキャッシュ済み状態の再利用で即時に行い、
// スクロールに応じてページを逐次取得する。
package pagination

import (
	"context"
	"errors"
	"sync"
)

// DefaultPageSize は1ページあたりの件数のデフォルト値。
const DefaultPageSize = 20

// DefaultScrollThreshold は追加読み込みを開始するスクロール率のデフォルト値。
const DefaultScrollThreshold = 0.9

// ErrSuperseded は取得完了時点でフィルタ変更・リセットにより結果が古くなったことを示す。
// 古い結果は状態に反映されない。
var ErrSuperseded = errors.New("page fetch superseded by a newer request")

// Filter はソース共通の並び順。
type Filter struct {
	SortBy        string
	SortDirection string
}

// Query は1ページ分の取得条件。
type Query struct {
	Source string
	Filter Filter
	Offset int
	Limit  int
	// NoCache はHTTPキャッシュを経由せずに取得することを要求する。
	NoCache bool
}

// FetchFunc は1ページ分の要素を取得する。
type FetchFunc[T any] func(ctx context.Context, q Query) ([]T, error)

// KeyFunc は重複排除に使う要素の識別子を返す。
type KeyFunc[T any] func(item T) string

// ScrollMetrics はスクロール位置。
type ScrollMetrics struct {
	Top      float64
	Viewport float64
	Total    float64
}

// Scrolled はスクロール率 (Top + Viewport) / Total を返す。Totalが0以下の場合は0。
func (m ScrollMetrics) Scrolled() float64 {
	if m.Total <= 0 {
		return 0
	}
	return (m.Top + m.Viewport) / m.Total
}

// State はソースごとのページング状態のスナップショット。
type State[T any] struct {
	Items       []T
	Offset      int
	Loading     bool
	LoadingMore bool
	Err         error
	HasMore     bool
	// Loaded は初回ページの取得に成功済みかどうか。
	Loaded bool
}

type sourceState[T any] struct {
	State[T]
	keys       map[string]struct{}
	generation uint64
	cancel     context.CancelFunc
}

// Config はControllerの設定。
type Config struct {
	PageSize        int
	ScrollThreshold float64
	Filter          Filter
}

// Controller は複数ソースのページング状態を保持する。
// 各ソースの取得は独立しており、異なるソースの取得は並行して実行できる。
// 同一ソースでの取得はloading/loadingMoreフラグで1件に制限する。
type Controller[T any] struct {
	mu        sync.Mutex
	fetch     FetchFunc[T]
	key       KeyFunc[T]
	pageSize  int
	threshold float64
	filter    Filter
	active    string
	sources   map[string]*sourceState[T]
}

// New はControllerを生成する。0以下の設定値はデフォルト値で補完する。
func New[T any](fetch FetchFunc[T], key KeyFunc[T], cfg Config) *Controller[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ScrollThreshold <= 0 {
		cfg.ScrollThreshold = DefaultScrollThreshold
	}
	return &Controller[T]{
		fetch:     fetch,
		key:       key,
		pageSize:  cfg.PageSize,
		threshold: cfg.ScrollThreshold,
		filter:    cfg.Filter,
		sources:   make(map[string]*sourceState[T]),
	}
}

// PageSize は1ページあたりの件数を返す。
func (c *Controller[T]) PageSize() int { return c.pageSize }

// Active は現在選択中のソースを返す。
func (c *Controller[T]) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Filter は現在の並び順を返す。
func (c *Controller[T]) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// State はソースの状態のコピーを返す。未使用のソースは初期状態を返す。
func (c *Controller[T]) State(source string) State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.source(source).State
	st.Items = append([]T(nil), st.Items...)
	return st
}

// Select はアクティブなソースを切り替える。
// 未取得のソースであれば初回ページを取得し、取得済みであれば通信せずに状態を再利用する。
func (c *Controller[T]) Select(ctx context.Context, source string) error {
	c.mu.Lock()
	c.active = source
	st := c.source(source)
	needsFetch := !st.Loaded && !st.Loading
	c.mu.Unlock()

	if !needsFetch {
		return nil
	}
	return c.fetchPage(ctx, source, true, false)
}

// ChangeFilter は並び順を変更する。すべてのソースの蓄積済み要素を破棄して
// 進行中の取得を取り消し、アクティブなソースの初回ページを直ちに取得する。
func (c *Controller[T]) ChangeFilter(ctx context.Context, f Filter) error {
	c.mu.Lock()
	c.filter = f
	for _, st := range c.sources {
		c.supersede(st)
		st.Items = nil
		st.keys = make(map[string]struct{})
		st.Offset = 0
		st.HasMore = true
		st.Loaded = false
		st.Err = nil
	}
	active := c.active
	c.mu.Unlock()

	if active == "" {
		return nil
	}
	return c.fetchPage(ctx, active, true, false)
}

// FetchPage は1ページを取得する。
// resetがtrueの場合はオフセット0から取得してバッファを置き換え、進行中の取得は破棄する。
// resetがfalseの場合は現在のオフセットから取得して未取得の要素のみを追加する。
// 追加取得は、取得中・続きがない場合には何もしない。
func (c *Controller[T]) FetchPage(ctx context.Context, source string, reset bool) error {
	return c.fetchPage(ctx, source, reset, false)
}

// OnScroll はスクロール位置が閾値を超えていれば追加ページを取得する。
// 取得を開始した場合はtrueを返す。
func (c *Controller[T]) OnScroll(ctx context.Context, source string, m ScrollMetrics) (bool, error) {
	if m.Scrolled() <= c.threshold {
		return false, nil
	}

	c.mu.Lock()
	st := c.source(source)
	ready := st.HasMore && !st.LoadingMore && !st.Loading
	c.mu.Unlock()

	if !ready {
		return false, nil
	}
	return true, c.fetchPage(ctx, source, false, false)
}

// Refresh はHTTPキャッシュを経由せずに初回ページを取得し直し、バッファを置き換える。
func (c *Controller[T]) Refresh(ctx context.Context, source string) error {
	return c.fetchPage(ctx, source, true, true)
}

// Retry はエラー後の再取得を行う。
func (c *Controller[T]) Retry(ctx context.Context, source string) error {
	return c.fetchPage(ctx, source, true, false)
}

// Discard はソースの進行中の取得を取り消す。取得済みの要素は保持する。
func (c *Controller[T]) Discard(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.sources[source]; ok {
		c.supersede(st)
	}
}

func (c *Controller[T]) fetchPage(ctx context.Context, source string, reset, noCache bool) error {
	c.mu.Lock()
	st := c.source(source)

	if reset {
		c.supersede(st)
	} else if st.Loading || st.LoadingMore || !st.HasMore {
		c.mu.Unlock()
		return nil
	}

	offset := st.Offset
	if reset {
		offset = 0
		st.Loading = true
	} else {
		st.LoadingMore = true
	}

	fctx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	gen := st.generation
	q := Query{
		Source:  source,
		Filter:  c.filter,
		Offset:  offset,
		Limit:   c.pageSize,
		NoCache: noCache,
	}
	c.mu.Unlock()

	page, err := c.fetch(fctx, q)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if st.generation != gen {
		return ErrSuperseded
	}
	st.cancel = nil
	st.Loading = false
	st.LoadingMore = false

	if err != nil {
		st.Err = err
		return err
	}

	st.Err = nil
	st.Loaded = true
	if reset {
		st.Items = nil
		st.keys = make(map[string]struct{}, len(page))
	}
	for _, item := range page {
		k := c.key(item)
		if _, dup := st.keys[k]; dup {
			continue
		}
		st.keys[k] = struct{}{}
		st.Items = append(st.Items, item)
	}
	// 上流のページングと整合させるため、重複排除前の件数で進める
	st.Offset = offset + len(page)
	st.HasMore = len(page) >= c.pageSize

	return nil
}

// supersede は進行中の取得を取り消し、その完了結果が反映されないようにする。
// 呼び出し元でロックを保持していること。
func (c *Controller[T]) supersede(st *sourceState[T]) {
	st.generation++
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.Loading = false
	st.LoadingMore = false
}

// source はソースの状態を返す。存在しなければ初期状態で作成する。
// 呼び出し元でロックを保持していること。
func (c *Controller[T]) source(key string) *sourceState[T] {
	st, ok := c.sources[key]
	if !ok {
		st = &sourceState[T]{
			State: State[T]{HasMore: true},
			keys:  make(map[string]struct{}),
		}
		c.sources[key] = st
	}
	return st
}

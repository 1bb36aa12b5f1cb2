package model

import (
	"encoding/json"
	"time"
)

// Platform はSNSプラットフォームを表す。
type Platform string

const (
	// PlatformReddit はReddit。
	PlatformReddit Platform = "reddit"
	// PlatformX はX（旧Twitter）。
	PlatformX Platform = "x"
	// PlatformYouTube はYouTube。
	PlatformYouTube Platform = "youtube"
)

// Platforms はサポートするプラットフォームの一覧。
var Platforms = []Platform{PlatformReddit, PlatformX, PlatformYouTube}

// ParsePlatform は文字列をPlatformに変換する。未知の値の場合はfalseを返す。
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// ListItem はプラットフォーム非依存に正規化したリスト項目。
// IDはソース+プラットフォーム内で一意であり、ページ結合時の重複排除キーとなる。
type ListItem struct {
	ID       string             `json:"id"`
	Platform Platform           `json:"platform"`
	Name     string             `json:"name"`
	Avatar   string             `json:"avatar,omitempty"`
	Metrics  map[string]float64 `json:"metrics"`
	Raw      json.RawMessage    `json:"raw,omitempty"` // 詳細表示用の元ペイロード
}

// ListResult はページ単位のリストレスポンス。
type ListResult struct {
	Items []ListItem `json:"items"`
	Count int        `json:"count"`
}

// SourceRow はリポジトリから取得した未正規化の行。
type SourceRow struct {
	ID         string
	Platform   Platform
	ExternalID string
	Raw        json.RawMessage
	FeedURL    string // クリエイターのみ
	UpdatedAt  time.Time
}

// SortDirection はソート順を表す。
type SortDirection string

const (
	// SortAsc は昇順。
	SortAsc SortDirection = "asc"
	// SortDesc は降順。
	SortDesc SortDirection = "desc"
)

// ListQuery はリスト取得のページネーション・ソート・フィルタ条件。
type ListQuery struct {
	Limit         int
	Offset        int
	SortBy        string
	SortDirection SortDirection
	Platform      Platform // 空の場合は全プラットフォーム
}

// Resource はリスト取得対象の種類を表す。
type Resource string

const (
	// ResourceCreators はKOLクリエイター。
	ResourceCreators Resource = "creators"
	// ResourceTickers は話題の銘柄。
	ResourceTickers Resource = "tickers"
	// ResourceTopics は話題のトピック。
	ResourceTopics Resource = "topics"
)

// sortKeys はリソースごとに許可するソートキー。先頭がデフォルト。
var sortKeys = map[Resource][]string{
	ResourceCreators: {"followers", "engagement", "posts", "updated_at"},
	ResourceTickers:  {"mentions", "sentiment", "updated_at"},
	ResourceTopics:   {"mentions", "updated_at"},
}

// SortKeys は許可するソートキーの一覧を返す。
func (r Resource) SortKeys() []string {
	return append([]string(nil), sortKeys[r]...)
}

// DefaultSortKey はデフォルトのソートキーを返す。
func (r Resource) DefaultSortKey() string {
	if keys := sortKeys[r]; len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// ValidSortKey はソートキーが許可されているかを返す。
func (r Resource) ValidSortKey(key string) bool {
	for _, k := range sortKeys[r] {
		if k == key {
			return true
		}
	}
	return false
}

// Package postfeed はクリエイターの投稿フィード（RSS/Atom）を取得してListItemに変換する。
package postfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/kolboard/internal/model"
)

// userAgent はフィード取得時のUser-Agent。
const userAgent = "Kolboard/1.0 (+feed reader)"

// summaryLength は一覧表示用の要約の最大文字数。
const summaryLength = 280

// URLValidator はフィードURLの事前検証を行う。
type URLValidator interface {
	Validate(rawURL string) error
}

// Sanitizer は投稿本文のサニタイズを行う。
type Sanitizer interface {
	Body(rawHTML string) string
	Summary(rawHTML string, maxRunes int) string
}

// HTTPClient はHTTPリクエスト実行のインターフェース。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Post はListItem.Rawに格納する投稿の詳細。
type Post struct {
	Title       string     `json:"title"`
	Link        string     `json:"link,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body,omitempty"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
}

// StatusError は2xx以外のレスポンスを表す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status %d (%s)", e.StatusCode, ClassifyStatus(e.StatusCode))
}

// FetchFailure はHTTPステータスコードに基づく失敗の分類。
type FetchFailure string

const (
	// FailureGone はフィードが存在しないか公開されていない（404/410/401/403）。
	FailureGone FetchFailure = "gone"
	// FailureRetryLater は一時的な失敗（429/5xx）。
	FailureRetryLater FetchFailure = "retry_later"
	// FailureUnexpected はその他のステータス。
	FailureUnexpected FetchFailure = "unexpected"
)

// ClassifyStatus は2xx以外のステータスコードを分類する。
func ClassifyStatus(statusCode int) FetchFailure {
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return FailureGone
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return FailureGone
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return FailureRetryLater
	default:
		return FailureUnexpected
	}
}

// Fetcher は投稿フィードを取得する。
type Fetcher struct {
	client      HTTPClient
	validator   URLValidator
	sanitizer   Sanitizer
	logger      *slog.Logger
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// clientにはSSRF対策済みのクライアントを渡すこと。
func NewFetcher(
	client HTTPClient,
	validator URLValidator,
	sanitizer Sanitizer,
	logger *slog.Logger,
	maxBodySize int64,
) *Fetcher {
	return &Fetcher{
		client:      client,
		validator:   validator,
		sanitizer:   sanitizer,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードを取得し、公開日時の新しい順に並べた投稿を返す。
func (f *Fetcher) Fetch(ctx context.Context, platform model.Platform, feedURL string) ([]model.ListItem, error) {
	start := time.Now()

	if err := f.validator.Validate(feedURL); err != nil {
		return nil, fmt.Errorf("feed URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]model.ListItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		item, ok := f.convert(platform, it)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Metrics["published_at"] > items[j].Metrics["published_at"]
	})

	f.logger.Info("投稿フィードを取得しました",
		slog.String("platform", string(platform)),
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return items, nil
}

// convert はgofeedの記事をListItemに変換する。IDもタイトルも得られない記事は除外する。
func (f *Fetcher) convert(platform model.Platform, it *gofeed.Item) (model.ListItem, bool) {
	id := it.GUID
	if id == "" {
		id = it.Link
	}
	title := strings.TrimSpace(it.Title)
	if id == "" || title == "" {
		return model.ListItem{}, false
	}

	content := it.Content
	if content == "" {
		content = it.Description
	}

	post := Post{
		Title:   title,
		Link:    it.Link,
		Body:    f.sanitizer.Body(content),
		Summary: f.sanitizer.Summary(content, summaryLength),
	}
	if it.Author != nil {
		post.Author = it.Author.Name
	} else if len(it.Authors) > 0 && it.Authors[0] != nil {
		post.Author = it.Authors[0].Name
	}

	metrics := map[string]float64{}
	if t := it.PublishedParsed; t != nil {
		post.PublishedAt = t
	} else if t := it.UpdatedParsed; t != nil {
		post.PublishedAt = t
	}
	if post.PublishedAt != nil {
		metrics["published_at"] = float64(post.PublishedAt.Unix())
	}

	post.Thumbnail = thumbnail(it, post.Body)

	raw, err := json.Marshal(post)
	if err != nil {
		f.logger.Warn("投稿の変換に失敗しました",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return model.ListItem{}, false
	}

	return model.ListItem{
		ID:       id,
		Platform: platform,
		Name:     title,
		Avatar:   post.Thumbnail,
		Metrics:  metrics,
		Raw:      raw,
	}, true
}

// thumbnail はサムネイルURLを決定する。
// 優先順位: フィードの画像 > media:thumbnail（YouTube等）> 本文中の最初のimg
func thumbnail(it *gofeed.Item, sanitizedBody string) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	if u := mediaThumbnail(it); u != "" {
		return u
	}
	return firstImageSrc(sanitizedBody)
}

// mediaThumbnail はMedia RSS拡張のthumbnailを探す。
// YouTubeのフィードでは media:group の子要素に入っている。
func mediaThumbnail(it *gofeed.Item) string {
	media, ok := it.Extensions["media"]
	if !ok {
		return ""
	}
	if ts := media["thumbnail"]; len(ts) > 0 && ts[0].Attrs["url"] != "" {
		return ts[0].Attrs["url"]
	}
	for _, g := range media["group"] {
		if ts := g.Children["thumbnail"]; len(ts) > 0 && ts[0].Attrs["url"] != "" {
			return ts[0].Attrs["url"]
		}
	}
	return ""
}

// firstImageSrc はHTML中の最初のimg要素のsrc属性を返す。
func firstImageSrc(body string) string {
	if body == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

// Package trending はクリエイター・銘柄・トピックのトレンドリストと、クリエイターの投稿一覧を提供する。
package trending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/kolboard/internal/metrics"
	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/normalize"
	"github.com/hitoshi/kolboard/internal/postfeed"
	"github.com/hitoshi/kolboard/internal/repository"
)

// FeedFetcher は投稿フィードの取得インターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, platform model.Platform, feedURL string) ([]model.ListItem, error)
}

// normalizers はリソースごとの正規化関数。
var normalizers = map[model.Resource]func(model.SourceRow) (model.ListItem, error){
	model.ResourceCreators: normalize.Creator,
	model.ResourceTickers:  normalize.Ticker,
	model.ResourceTopics:   normalize.Topic,
}

// Service はトレンドリストのビジネスロジックを提供する。
type Service struct {
	repo      repository.ListRepository
	feeds     FeedFetcher
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ListRepository, feeds FeedFetcher, logger *slog.Logger, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		feeds:     feeds,
		logger:    logger,
		collector: collector,
	}
}

// ListCreators はクリエイターのリストを返す。
func (s *Service) ListCreators(ctx context.Context, q model.ListQuery) (*model.ListResult, error) {
	return s.list(ctx, model.ResourceCreators, q)
}

// ListTickers は話題の銘柄のリストを返す。
func (s *Service) ListTickers(ctx context.Context, q model.ListQuery) (*model.ListResult, error) {
	return s.list(ctx, model.ResourceTickers, q)
}

// ListTopics は話題のトピックのリストを返す。
func (s *Service) ListTopics(ctx context.Context, q model.ListQuery) (*model.ListResult, error) {
	return s.list(ctx, model.ResourceTopics, q)
}

// maxTopUpRounds は除外行の穴埋めで追加取得する回数の上限。
const maxTopUpRounds = 5

// list はリポジトリから行を取得して正規化する。
// 正規化できない行はログに記録して除外し、後続の行を追加取得して件数をlimitまで埋める。
// 埋めた行は次ページの先頭と重なるが、クライアントはIDで重複を除くため二重表示にはならない。
// countはリポジトリの総件数のまま返す。
func (s *Service) list(ctx context.Context, resource model.Resource, q model.ListQuery) (*model.ListResult, error) {
	if q.SortBy == "" {
		q.SortBy = resource.DefaultSortKey()
	}
	if q.SortDirection == "" {
		q.SortDirection = model.SortDesc
	}

	var (
		items []model.ListItem
		total int
	)
	next := q
	for round := 0; ; round++ {
		page, err := s.repo.List(ctx, resource, next)
		if err != nil {
			s.collector.RecordListRequest(string(resource), metrics.OutcomeError)
			return nil, fmt.Errorf("failed to list %s: %w", resource, err)
		}
		if round == 0 {
			total = page.Total
			items = make([]model.ListItem, 0, len(page.Rows))
		}

		var dropped int
		items, dropped = s.appendNormalized(items, resource, page.Rows)

		// 除外がない、または後続の行がない場合はこれで確定
		if dropped == 0 || len(page.Rows) < next.Limit || len(items) >= q.Limit {
			break
		}
		if round >= maxTopUpRounds {
			s.logger.Warn("除外行の穴埋めを打ち切りました",
				slog.String("resource", string(resource)),
				slog.Int("items", len(items)),
				slog.Int("limit", q.Limit),
			)
			break
		}
		next.Offset += len(page.Rows)
		next.Limit = q.Limit - len(items)
	}

	s.collector.RecordListRequest(string(resource), metrics.OutcomeSuccess)
	return &model.ListResult{Items: items, Count: total}, nil
}

// appendNormalized は行を正規化してitemsに追加し、除外した行数を返す。
func (s *Service) appendNormalized(items []model.ListItem, resource model.Resource, rows []model.SourceRow) ([]model.ListItem, int) {
	normalizeRow := normalizers[resource]
	dropped := 0
	for _, row := range rows {
		item, err := normalizeRow(row)
		if err != nil {
			s.logger.Warn("正規化できない行を除外しました",
				slog.String("resource", string(resource)),
				slog.String("id", row.ID),
				slog.String("platform", string(row.Platform)),
				slog.String("error", err.Error()),
			)
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// ListCreatorPosts はクリエイターの投稿フィードを取得し、[offset, offset+limit) の範囲を返す。
// countはフィード中の投稿総数。
func (s *Service) ListCreatorPosts(ctx context.Context, creatorID string, limit, offset int) (*model.ListResult, error) {
	const resource = "posts"

	creator, err := s.repo.FindCreator(ctx, creatorID)
	if err != nil {
		s.collector.RecordListRequest(resource, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to find creator: %w", err)
	}
	if creator == nil {
		s.collector.RecordListRequest(resource, metrics.OutcomeNotFound)
		return nil, model.NewCreatorNotFoundError(creatorID)
	}
	if creator.FeedURL == "" {
		s.collector.RecordListRequest(resource, metrics.OutcomeNotFound)
		return nil, model.NewFeedNotConfiguredError(creatorID)
	}

	posts, err := s.feeds.Fetch(ctx, creator.Platform, creator.FeedURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Warn("投稿フィードの取得に失敗しました",
			slog.String("creator_id", creatorID),
			slog.String("feed_url", creator.FeedURL),
			slog.String("error", err.Error()),
		)
		s.collector.RecordListRequest(resource, metrics.OutcomeError)
		return nil, model.NewFeedFetchFailedError(failureReason(err))
	}

	s.collector.RecordListRequest(resource, metrics.OutcomeSuccess)
	return &model.ListResult{Items: window(posts, offset, limit), Count: len(posts)}, nil
}

// failureReason はユーザーに返す失敗理由を決定する。内部のURLやアドレスは含めない。
func failureReason(err error) string {
	var statusErr *postfeed.StatusError
	if errors.As(err, &statusErr) {
		return string(postfeed.ClassifyStatus(statusErr.StatusCode))
	}
	return string(postfeed.FailureUnexpected)
}

// window はitemsの [offset, offset+limit) を返す。範囲外の場合は空スライス。
func window(items []model.ListItem, offset, limit int) []model.ListItem {
	if offset >= len(items) || limit <= 0 {
		return []model.ListItem{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/kolboard/internal/model"
)

// tables はリソースとテーブル名の対応。
var tables = map[model.Resource]string{
	model.ResourceCreators: "kol_creators",
	model.ResourceTickers:  "trending_tickers",
	model.ResourceTopics:   "trending_topics",
}

// PostgresListRepo はPostgreSQLを使用したリストリポジトリ。
type PostgresListRepo struct {
	db *sql.DB
}

// NewPostgresListRepo はPostgresListRepoを生成する。
func NewPostgresListRepo(db *sql.DB) *PostgresListRepo {
	return &PostgresListRepo{db: db}
}

// buildListQuery はリスト取得SQLを組み立てる。
// ORDER BYのカラムは許可リストで検証済みのキーのみを埋め込む。
// 同値の行はidで並べ、ページ境界をまたいだ順序を安定させる。
func buildListQuery(resource model.Resource, q model.ListQuery) (string, []any, error) {
	table, ok := tables[resource]
	if !ok {
		return "", nil, fmt.Errorf("unknown resource %q", resource)
	}
	if !resource.ValidSortKey(q.SortBy) {
		return "", nil, fmt.Errorf("sort key %q is not allowed for %s", q.SortBy, resource)
	}

	dir := "DESC"
	if q.SortDirection == model.SortAsc {
		dir = "ASC"
	}

	feedURL := "NULL::text"
	if resource == model.ResourceCreators {
		feedURL = "feed_url"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, platform, external_id, raw, %s, updated_at, COUNT(*) OVER() AS total FROM %s", feedURL, table)

	args := []any{}
	if q.Platform != "" {
		args = append(args, string(q.Platform))
		fmt.Fprintf(&sb, " WHERE platform = $%d", len(args))
	}

	fmt.Fprintf(&sb, " ORDER BY %s %s, id ASC", q.SortBy, dir)

	args = append(args, q.Limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	args = append(args, q.Offset)
	fmt.Fprintf(&sb, " OFFSET $%d", len(args))

	return sb.String(), args, nil
}

// List はリソースの行をソート・フィルタ・ページングして返す。
func (r *PostgresListRepo) List(ctx context.Context, resource model.Resource, q model.ListQuery) (*ListPage, error) {
	query, args, err := buildListQuery(resource, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗しました: %w", resource, err)
	}
	defer rows.Close()

	page := &ListPage{}
	for rows.Next() {
		var (
			row     model.SourceRow
			feedURL sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.Platform, &row.ExternalID, &row.Raw, &feedURL, &row.UpdatedAt, &page.Total); err != nil {
			return nil, fmt.Errorf("%sのスキャンに失敗しました: %w", resource, err)
		}
		row.FeedURL = feedURL.String
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%sの読み取りに失敗しました: %w", resource, err)
	}

	// オフセットが総件数を超えるとウィンドウ関数の件数が得られないため別途数える
	if len(page.Rows) == 0 && q.Offset > 0 {
		total, err := r.count(ctx, resource, q.Platform)
		if err != nil {
			return nil, err
		}
		page.Total = total
	}

	return page, nil
}

func (r *PostgresListRepo) count(ctx context.Context, resource model.Resource, platform model.Platform) (int, error) {
	query := "SELECT COUNT(*) FROM " + tables[resource]
	var args []any
	if platform != "" {
		query += " WHERE platform = $1"
		args = append(args, string(platform))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("%sの件数取得に失敗しました: %w", resource, err)
	}
	return total, nil
}

// FindCreator は指定IDのクリエイターを取得する。見つからない場合はnilを返す。
func (r *PostgresListRepo) FindCreator(ctx context.Context, id string) (*model.SourceRow, error) {
	var (
		row     model.SourceRow
		feedURL sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, platform, external_id, raw, feed_url, updated_at
		 FROM kol_creators WHERE id = $1`,
		id,
	).Scan(&row.ID, &row.Platform, &row.ExternalID, &row.Raw, &feedURL, &row.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("クリエイターの取得に失敗しました: %w", err)
	}

	row.FeedURL = feedURL.String
	return &row, nil
}

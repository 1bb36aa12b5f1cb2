// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/kolboard/internal/model"
)

// ListPage はページ単位の未正規化行と、条件に一致する総件数。
type ListPage struct {
	Rows  []model.SourceRow
	Total int
}

// ListRepository はクリエイター・銘柄・トピックの読み取りインターフェース。
// テーブルは外部の収集ジョブが書き込み、本サービスは読み取りのみを行う。
type ListRepository interface {
	// List はリソースの行をソート・フィルタ・ページングして返す。
	// SortByはリソースで許可されたキーであること。
	List(ctx context.Context, resource model.Resource, q model.ListQuery) (*ListPage, error)

	// FindCreator は指定IDのクリエイターを取得する。見つからない場合はnilを返す。
	FindCreator(ctx context.Context, id string) (*model.SourceRow, error)
}

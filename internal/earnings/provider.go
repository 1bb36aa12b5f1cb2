// Package earnings は決算カレンダーの取得機能を提供する。
// 複数の外部プロバイダを優先順に試行し、最初に得られた結果を企業プロフィールで
// エンリッチメントする。すべてのプロバイダが利用できない場合はモックデータを返す。
package earnings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/kolboard/internal/model"
)

// userAgent は外部API呼び出し時のUser-Agent。
const userAgent = "Kolboard/1.0"

// maxResponseSize はプロバイダレスポンスの最大サイズ（10MB）。
const maxResponseSize = 10 * 1024 * 1024

// ErrNotConfigured はAPIキー未設定でプロバイダが利用できないことを示す。
var ErrNotConfigured = errors.New("provider is not configured")

// CalendarProvider は決算カレンダーを返す外部プロバイダのインターフェース。
type CalendarProvider interface {
	// Name はログ・メトリクス用のプロバイダ名を返す。
	Name() string
	// Configured はAPIキーが設定されているかを返す。falseの場合は呼び出されない。
	Configured() bool
	// SupportsDateRange はプロバイダ側で日付範囲を絞り込めるかを返す。
	// falseの場合、集約側で範囲外のイベントを除外する。
	SupportsDateRange() bool
	// Calendar は日付範囲の決算イベントを取得する。
	Calendar(ctx context.Context, r model.DateRange) ([]model.EarningsEvent, error)
}

// SymbolCalendarProvider は銘柄指定で決算カレンダーを取得できるプロバイダ。
type SymbolCalendarProvider interface {
	CalendarProvider
	CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange) ([]model.EarningsEvent, error)
}

// ProfileFetcher は企業プロフィールを取得するインターフェース。
// 該当企業がない場合は (nil, nil) を返す。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, symbol string) (*model.CompanyProfile, error)
}

// HTTPClient はHTTPリクエスト実行のインターフェース（テスト時に差し替え可能）。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError は2xx以外のレスポンスを表す。
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}

// getBody はGETリクエストを実行し、2xxの場合のみボディを返す。
// 空ボディはエラーとして扱う。
func getBody(ctx context.Context, client HTTPClient, provider, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/csv, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s returned an empty body", provider)
	}

	return body, nil
}

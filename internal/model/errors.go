// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, list, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidDate       = "INVALID_DATE"
	ErrCodeInvalidDateRange  = "INVALID_DATE_RANGE"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeInvalidSortKey    = "INVALID_SORT_KEY"
	ErrCodeInvalidPlatform   = "INVALID_PLATFORM"
	ErrCodeCreatorNotFound   = "CREATOR_NOT_FOUND"
	ErrCodeFeedNotConfigured = "FEED_NOT_CONFIGURED"
	ErrCodeFeedFetchFailed   = "FEED_FETCH_FAILED"
	ErrCodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewInvalidDateError は日付形式が不正な場合のエラーを生成する。
func NewInvalidDateError(param, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("%sの日付形式が不正です: %s", param, value),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewInvalidDateRangeError は日付範囲が不正な場合のエラーを生成する。
func NewInvalidDateRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  fmt.Sprintf("日付範囲が不正です: %s", reason),
		Category: "validation",
		Action:   fmt.Sprintf("from ≦ to かつ%d日以内の範囲を指定してください。", MaxDateRangeDays),
	}
}

// NewInvalidParameterError はクエリパラメータが不正な場合のエラーを生成する。
func NewInvalidParameterError(param, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータ%sの値が不正です: %s", param, value),
		Category: "validation",
		Action:   "limitは1〜100、offsetは0以上、sort_directionはascまたはdescを指定してください。",
	}
}

// NewInvalidSortKeyError は未対応のソートキーが指定された場合のエラーを生成する。
func NewInvalidSortKeyError(sortBy string, allowed []string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSortKey,
		Message:  fmt.Sprintf("未対応のソートキーです: %s", sortBy),
		Category: "validation",
		Action:   fmt.Sprintf("sort_byには %v のいずれかを指定してください。", allowed),
	}
}

// NewInvalidPlatformError は未対応のプラットフォームが指定された場合のエラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("未対応のプラットフォームです: %s", platform),
		Category: "validation",
		Action:   "platformには reddit、x、youtube のいずれかを指定してください。",
	}
}

// NewCreatorNotFoundError はクリエイターが見つからない場合のエラーを生成する。
func NewCreatorNotFoundError(creatorID string) *APIError {
	return &APIError{
		Code:     ErrCodeCreatorNotFound,
		Message:  fmt.Sprintf("指定されたクリエイターが見つかりません: %s", creatorID),
		Category: "list",
		Action:   "クリエイターIDを確認してください。",
	}
}

// NewFeedNotConfiguredError はクリエイターに投稿フィードが設定されていない場合のエラーを生成する。
func NewFeedNotConfiguredError(creatorID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotConfigured,
		Message:  fmt.Sprintf("このクリエイターには投稿フィードが登録されていません: %s", creatorID),
		Category: "list",
		Action:   "別のクリエイターを選択してください。",
	}
}

// NewFeedFetchFailedError は投稿フィードの取得に失敗した場合のエラーを生成する。
func NewFeedFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedFetchFailed,
		Message:  fmt.Sprintf("投稿フィードの取得に失敗しました: %s", reason),
		Category: "list",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

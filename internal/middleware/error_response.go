package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/kolboard/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// request_idはリクエストIDミドルウェアを通ったリクエストでのみ設定され、サーバーログの request_id と一致する。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidDate,
		model.ErrCodeInvalidDateRange,
		model.ErrCodeInvalidParameter,
		model.ErrCodeInvalidSortKey,
		model.ErrCodeInvalidPlatform:
		return http.StatusBadRequest
	case model.ErrCodeCreatorNotFound, model.ErrCodeFeedNotConfigured:
		return http.StatusNotFound
	case model.ErrCodeFeedFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はエラーコードから決まるステータスでAPIErrorを書き込む。
func WriteError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	WriteErrorResponse(w, r, StatusForCode(apiErr.Code), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if r != nil {
		body.RequestID = RequestIDFromContext(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーにはリクエストIDと一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

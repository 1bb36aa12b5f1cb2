package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kolboard/internal/middleware"
	"github.com/hitoshi/kolboard/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listCacheControl はリストレスポンスのキャッシュ指定。
const listCacheControl = "private, max-age=30"

// ListServiceInterface はリストハンドラーが必要とするサービスインターフェース。
type ListServiceInterface interface {
	ListCreators(ctx context.Context, q model.ListQuery) (*model.ListResult, error)
	ListTickers(ctx context.Context, q model.ListQuery) (*model.ListResult, error)
	ListTopics(ctx context.Context, q model.ListQuery) (*model.ListResult, error)
	ListCreatorPosts(ctx context.Context, creatorID string, limit, offset int) (*model.ListResult, error)
}

// ListHandler はトレンドリストのHTTPハンドラー。
type ListHandler struct {
	service ListServiceInterface
	logger  *slog.Logger
}

// NewListHandler はListHandlerを生成する。
func NewListHandler(service ListServiceInterface, logger *slog.Logger) *ListHandler {
	return &ListHandler{service: service, logger: logger}
}

// ListCreators はクリエイターのリストを返す。
// GET /api/creators?limit=20&offset=0&sort_by=followers&sort_direction=desc&platform=reddit
func (h *ListHandler) ListCreators(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, model.ResourceCreators, h.service.ListCreators)
}

// ListTickers は話題の銘柄のリストを返す。
// GET /api/tickers
func (h *ListHandler) ListTickers(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, model.ResourceTickers, h.service.ListTickers)
}

// ListTopics は話題のトピックのリストを返す。
// GET /api/topics
func (h *ListHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, model.ResourceTopics, h.service.ListTopics)
}

// ListCreatorPosts はクリエイターの投稿一覧を返す。
// GET /api/creators/{id}/posts?limit=20&offset=0
func (h *ListHandler) ListCreatorPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset, apiErr := parsePaging(r)
	if apiErr != nil {
		middleware.WriteError(w, r, apiErr)
		return
	}

	result, err := h.service.ListCreatorPosts(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeList(w, result)
}

func (h *ListHandler) serveList(
	w http.ResponseWriter,
	r *http.Request,
	resource model.Resource,
	list func(context.Context, model.ListQuery) (*model.ListResult, error),
) {
	q, apiErr := parseListQuery(r, resource)
	if apiErr != nil {
		middleware.WriteError(w, r, apiErr)
		return
	}

	result, err := list(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeList(w, result)
}

// parseListQuery はクエリパラメータを検証してListQueryを構築する。
func parseListQuery(r *http.Request, resource model.Resource) (model.ListQuery, *model.APIError) {
	limit, offset, apiErr := parsePaging(r)
	if apiErr != nil {
		return model.ListQuery{}, apiErr
	}

	params := r.URL.Query()
	q := model.ListQuery{
		Limit:         limit,
		Offset:        offset,
		SortBy:        resource.DefaultSortKey(),
		SortDirection: model.SortDesc,
	}

	if v := params.Get("sort_by"); v != "" {
		if !resource.ValidSortKey(v) {
			return model.ListQuery{}, model.NewInvalidSortKeyError(v, resource.SortKeys())
		}
		q.SortBy = v
	}

	switch v := params.Get("sort_direction"); v {
	case "":
	case string(model.SortAsc), string(model.SortDesc):
		q.SortDirection = model.SortDirection(v)
	default:
		return model.ListQuery{}, model.NewInvalidParameterError("sort_direction", v)
	}

	if v := params.Get("platform"); v != "" {
		p, ok := model.ParsePlatform(v)
		if !ok {
			return model.ListQuery{}, model.NewInvalidPlatformError(v)
		}
		q.Platform = p
	}

	return q, nil
}

// parsePaging はlimitとoffsetを検証する。limitは1〜100（デフォルト20）、offsetは0以上。
func parsePaging(r *http.Request) (limit, offset int, apiErr *model.APIError) {
	params := r.URL.Query()

	limit = defaultListLimit
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return 0, 0, model.NewInvalidParameterError("limit", v)
		}
		limit = n
	}

	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, model.NewInvalidParameterError("offset", v)
		}
		offset = n
	}

	return limit, offset, nil
}

func writeList(w http.ResponseWriter, result *model.ListResult) {
	if result.Items == nil {
		result.Items = []model.ListItem{}
	}
	w.Header().Set("Cache-Control", listCacheControl)
	writeJSON(w, http.StatusOK, result)
}

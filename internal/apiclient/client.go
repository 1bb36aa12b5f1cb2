// Package apiclient はkolboardのリストAPIを呼び出すクライアント。
// pagination.Controllerの取得関数として利用する。
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/kolboard/internal/model"
	"github.com/hitoshi/kolboard/internal/pagination"
)

const defaultBaseURL = "http://localhost:8080"

// SourceAll は全プラットフォームを対象とするソースキー。
const SourceAll = "all"

// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
const maxErrorBody = 4096

// HTTPClient はHTTPリクエスト実行のインターフェース。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption はClientの設定を行う。
type ClientOption func(*Client)

// WithHTTPClient はHTTPクライアントを差し替える。
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL はAPIのベースURLを設定する。
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// Client はリストAPIのクライアント。
type Client struct {
	baseURL    string
	httpClient HTTPClient
}

// NewClient はClientを生成する。
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrorResponse はAPIが返したエラー。
type ErrorResponse struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Category   string `json:"category"`
	Action     string `json:"action"`
}

func (e *ErrorResponse) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// PageFetcher はリソースに対するpagination.FetchFuncを返す。
// Query.Sourceはプラットフォーム名として扱い、SourceAllの場合は絞り込まない。
func (c *Client) PageFetcher(resource model.Resource) pagination.FetchFunc[model.ListItem] {
	return func(ctx context.Context, q pagination.Query) ([]model.ListItem, error) {
		return c.FetchPage(ctx, resource, q)
	}
}

// PostsFetcher はクリエイター投稿一覧のpagination.FetchFuncを返す。
// Query.SourceはクリエイターIDとして扱う。
func (c *Client) PostsFetcher() pagination.FetchFunc[model.ListItem] {
	return func(ctx context.Context, q pagination.Query) ([]model.ListItem, error) {
		path := "/api/creators/" + url.PathEscape(q.Source) + "/posts"
		params := url.Values{}
		params.Set("limit", strconv.Itoa(q.Limit))
		params.Set("offset", strconv.Itoa(q.Offset))

		result, err := c.get(ctx, path, params, q.NoCache)
		if err != nil {
			return nil, err
		}
		return result.Items, nil
	}
}

// FetchPage はリストAPIから1ページ分を取得する。
func (c *Client) FetchPage(ctx context.Context, resource model.Resource, q pagination.Query) ([]model.ListItem, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Filter.SortBy != "" {
		params.Set("sort_by", q.Filter.SortBy)
	}
	if q.Filter.SortDirection != "" {
		params.Set("sort_direction", q.Filter.SortDirection)
	}
	if q.Source != "" && q.Source != SourceAll {
		params.Set("platform", q.Source)
	}

	result, err := c.get(ctx, "/api/"+string(resource), params, q.NoCache)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, noCache bool) (*model.ListResult, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}

	var result model.ListResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	return &result, nil
}

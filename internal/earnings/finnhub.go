package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kolboard/internal/model"
)

const (
	// finnhubBaseURL はFinnhub APIのベースURL。
	finnhubBaseURL = "https://finnhub.io/api/v1"
	// ProviderFinnhub はFinnhubのプロバイダ名。
	ProviderFinnhub = "finnhub"
)

// FinnhubClient はFinnhub APIのクライアント。
// 第1優先の決算カレンダープロバイダであり、銘柄指定の検索と企業プロフィール取得にも対応する。
type FinnhubClient struct {
	httpClient HTTPClient
	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewFinnhubClient はFinnhubClientの新しいインスタンスを生成する。
func NewFinnhubClient(httpClient HTTPClient, apiKey string) *FinnhubClient {
	return &FinnhubClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    finnhubBaseURL,
	}
}

// finnhubCalendarResponse は /calendar/earnings のレスポンス。
type finnhubCalendarResponse struct {
	EarningsCalendar []finnhubEarning `json:"earningsCalendar"`
}

type finnhubEarning struct {
	Date            string              `json:"date"`
	Symbol          string              `json:"symbol"`
	EPSActual       decimal.NullDecimal `json:"epsActual"`
	EPSEstimate     decimal.NullDecimal `json:"epsEstimate"`
	Hour            string              `json:"hour"`
	Quarter         *int                `json:"quarter"`
	Year            *int                `json:"year"`
	RevenueActual   *float64            `json:"revenueActual"`
	RevenueEstimate *float64            `json:"revenueEstimate"`
}

// Name はプロバイダ名を返す。
func (c *FinnhubClient) Name() string { return ProviderFinnhub }

// Configured はAPIキーが設定されているかを返す。
func (c *FinnhubClient) Configured() bool { return c.apiKey != "" }

// SupportsDateRange はFinnhubが日付範囲指定に対応していることを示す。
func (c *FinnhubClient) SupportsDateRange() bool { return true }

// Calendar は日付範囲の決算イベントを取得する。
func (c *FinnhubClient) Calendar(ctx context.Context, r model.DateRange) ([]model.EarningsEvent, error) {
	return c.calendar(ctx, "", r)
}

// CalendarForSymbol は指定銘柄の決算イベントを取得する。
func (c *FinnhubClient) CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange) ([]model.EarningsEvent, error) {
	return c.calendar(ctx, symbol, r)
}

func (c *FinnhubClient) calendar(ctx context.Context, symbol string, r model.DateRange) ([]model.EarningsEvent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("from", r.From)
	q.Set("to", r.To)
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	q.Set("token", c.apiKey)

	body, err := getBody(ctx, c.httpClient, ProviderFinnhub, c.baseURL+"/calendar/earnings?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp finnhubCalendarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse finnhub calendar: %w", err)
	}

	events := make([]model.EarningsEvent, 0, len(resp.EarningsCalendar))
	for _, e := range resp.EarningsCalendar {
		if e.Date == "" || e.Symbol == "" {
			continue
		}
		events = append(events, model.EarningsEvent{
			Date:            e.Date,
			Symbol:          strings.ToUpper(e.Symbol),
			EPSEstimate:     e.EPSEstimate,
			EPSActual:       e.EPSActual,
			RevenueEstimate: roundRevenue(e.RevenueEstimate),
			RevenueActual:   roundRevenue(e.RevenueActual),
			Quarter:         e.Quarter,
			Year:            e.Year,
			Time:            model.ParseEventTime(e.Hour),
		})
	}

	return events, nil
}

// FetchProfile は /stock/profile2 から企業プロフィールを取得する。
// Finnhubは未知の銘柄に対して空オブジェクトを返すため、その場合は (nil, nil) を返す。
func (c *FinnhubClient) FetchProfile(ctx context.Context, symbol string) (*model.CompanyProfile, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.apiKey)

	body, err := getBody(ctx, c.httpClient, ProviderFinnhub, c.baseURL+"/stock/profile2?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var profile model.CompanyProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse finnhub profile: %w", err)
	}

	if profile.Ticker == "" && profile.Name == "" {
		return nil, nil
	}

	return &profile, nil
}

// roundRevenue は小数で返される売上高を整数に丸める。
func roundRevenue(v *float64) *int64 {
	if v == nil {
		return nil
	}
	return model.Int64Ptr(int64(math.Round(*v)))
}

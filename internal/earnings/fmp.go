package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kolboard/internal/model"
)

const (
	// fmpBaseURL はFinancial Modeling Prep APIのベースURL。
	fmpBaseURL = "https://financialmodelingprep.com/api/v3"
	// ProviderFMP はFinancial Modeling Prepのプロバイダ名。
	ProviderFMP = "fmp"
)

// FMPClient はFinancial Modeling Prep APIのクライアント（第2優先）。
type FMPClient struct {
	httpClient HTTPClient
	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewFMPClient はFMPClientの新しいインスタンスを生成する。
func NewFMPClient(httpClient HTTPClient, apiKey string) *FMPClient {
	return &FMPClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    fmpBaseURL,
	}
}

// fmpEarning は /earning_calendar の1要素。
// キーが不正な場合FMPは配列ではなく {"Error Message": ...} を返すため、デコード失敗として扱われる。
type fmpEarning struct {
	Date             string              `json:"date"`
	Symbol           string              `json:"symbol"`
	EPS              decimal.NullDecimal `json:"eps"`
	EPSEstimated     decimal.NullDecimal `json:"epsEstimated"`
	Time             string              `json:"time"`
	Revenue          *float64            `json:"revenue"`
	RevenueEstimated *float64            `json:"revenueEstimated"`
	FiscalDateEnding string              `json:"fiscalDateEnding"`
}

// Name はプロバイダ名を返す。
func (c *FMPClient) Name() string { return ProviderFMP }

// Configured はAPIキーが設定されているかを返す。
func (c *FMPClient) Configured() bool { return c.apiKey != "" }

// SupportsDateRange はFMPが日付範囲指定に対応していることを示す。
func (c *FMPClient) SupportsDateRange() bool { return true }

// Calendar は日付範囲の決算イベントを取得する。
func (c *FMPClient) Calendar(ctx context.Context, r model.DateRange) ([]model.EarningsEvent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("from", r.From)
	q.Set("to", r.To)
	q.Set("apikey", c.apiKey)

	body, err := getBody(ctx, c.httpClient, ProviderFMP, c.baseURL+"/earning_calendar?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var entries []fmpEarning
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse fmp calendar: %w", err)
	}

	events := make([]model.EarningsEvent, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" || e.Symbol == "" {
			continue
		}
		ev := model.EarningsEvent{
			Date:            e.Date,
			Symbol:          strings.ToUpper(e.Symbol),
			EPSEstimate:     e.EPSEstimated,
			EPSActual:       e.EPS,
			RevenueEstimate: roundRevenue(e.RevenueEstimated),
			RevenueActual:   roundRevenue(e.Revenue),
			Time:            model.ParseEventTime(e.Time),
		}
		ev.Quarter, ev.Year = fiscalQuarter(e.FiscalDateEnding)
		events = append(events, ev)
	}

	return events, nil
}

// fiscalQuarter は決算期末日から四半期と年を求める。解析できない場合はnilを返す。
func fiscalQuarter(fiscalDateEnding string) (*int, *int) {
	t, err := time.Parse(time.DateOnly, fiscalDateEnding)
	if err != nil {
		return nil, nil
	}
	return model.IntPtr((int(t.Month())-1)/3 + 1), model.IntPtr(t.Year())
}

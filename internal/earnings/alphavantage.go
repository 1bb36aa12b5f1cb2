package earnings

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kolboard/internal/model"
)

const (
	// alphaVantageBaseURL はAlpha Vantage APIのエンドポイント。
	alphaVantageBaseURL = "https://www.alphavantage.co/query"
	// ProviderAlphaVantage はAlpha Vantageのプロバイダ名。
	ProviderAlphaVantage = "alphavantage"
	// alphaVantageHorizon は取得する期間。日付範囲での絞り込みはできない。
	alphaVantageHorizon = "3month"
)

// alphaVantageHeader はEARNINGS_CALENDARのCSVヘッダー。
var alphaVantageHeader = []string{"symbol", "name", "reportDate", "fiscalDateEnding", "estimate", "currency"}

// AlphaVantageClient はAlpha Vantage APIのクライアント（第3優先）。
// EARNINGS_CALENDARは日付範囲を指定できず、3か月分をCSVで返す。
type AlphaVantageClient struct {
	httpClient HTTPClient
	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewAlphaVantageClient はAlphaVantageClientの新しいインスタンスを生成する。
func NewAlphaVantageClient(httpClient HTTPClient, apiKey string) *AlphaVantageClient {
	return &AlphaVantageClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    alphaVantageBaseURL,
	}
}

// Name はプロバイダ名を返す。
func (c *AlphaVantageClient) Name() string { return ProviderAlphaVantage }

// Configured はAPIキーが設定されているかを返す。
func (c *AlphaVantageClient) Configured() bool { return c.apiKey != "" }

// SupportsDateRange はAlpha Vantageが日付範囲指定に対応していないことを示す。
func (c *AlphaVantageClient) SupportsDateRange() bool { return false }

// Calendar は3か月分の決算イベントを取得する。日付範囲の絞り込みは呼び出し側で行う。
func (c *AlphaVantageClient) Calendar(ctx context.Context, _ model.DateRange) ([]model.EarningsEvent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("function", "EARNINGS_CALENDAR")
	q.Set("horizon", alphaVantageHorizon)
	q.Set("apikey", c.apiKey)

	body, err := getBody(ctx, c.httpClient, ProviderAlphaVantage, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	return parseAlphaVantageCSV(body)
}

// parseAlphaVantageCSV はEARNINGS_CALENDARのCSVを解析する。
// レート制限時はCSVではなくJSONの案内文が返るため、ヘッダー不一致としてエラーにする。
func parseAlphaVantageCSV(body []byte) ([]model.EarningsEvent, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read alphavantage header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf("unexpected alphavantage payload: %q", strings.Join(header, ","))
	}

	var events []model.EarningsEvent
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse alphavantage csv: %w", err)
		}
		if len(rec) < len(alphaVantageHeader) {
			continue
		}

		symbol, name, reportDate := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2])
		if symbol == "" || reportDate == "" {
			continue
		}

		ev := model.EarningsEvent{
			Date:        reportDate,
			Symbol:      strings.ToUpper(symbol),
			CompanyName: name,
			Time:        model.EventTimeUnknown,
		}
		if est, err := decimal.NewFromString(strings.TrimSpace(rec[4])); err == nil {
			ev.EPSEstimate = decimal.NewNullDecimal(est)
		}
		ev.Quarter, ev.Year = fiscalQuarter(strings.TrimSpace(rec[3]))

		events = append(events, ev)
	}

	return events, nil
}

func headerMatches(header []string) bool {
	if len(header) < len(alphaVantageHeader) {
		return false
	}
	for i, h := range alphaVantageHeader {
		// 先頭列にBOMが付く場合がある
		if strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff") != h {
			return false
		}
	}
	return true
}

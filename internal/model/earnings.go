package model

import (
	"github.com/shopspring/decimal"
)

func init() {
	// EPSはフロントエンドへJSON数値として渡す（"1.5"ではなく1.5）。
	decimal.MarshalJSONWithoutQuotes = true
}

// EventTime は決算発表のタイミングを表す。
type EventTime string

const (
	// EventTimeBeforeOpen は寄り付き前の発表。
	EventTimeBeforeOpen EventTime = "bmo"
	// EventTimeAfterClose は大引け後の発表。
	EventTimeAfterClose EventTime = "amc"
	// EventTimeDuringHours は取引時間中の発表。
	EventTimeDuringHours EventTime = "dmh"
	// EventTimeUnknown は発表タイミング不明。
	EventTimeUnknown EventTime = "unknown"
)

// ParseEventTime はプロバイダ固有の表記をEventTimeに変換する。
// 認識できない値はEventTimeUnknownとして扱う。
func ParseEventTime(s string) EventTime {
	switch s {
	case "bmo", "BMO", "pre-market", "before-open":
		return EventTimeBeforeOpen
	case "amc", "AMC", "post-market", "after-close":
		return EventTimeAfterClose
	case "dmh", "DMH", "during-hours":
		return EventTimeDuringHours
	default:
		return EventTimeUnknown
	}
}

// EarningsEvent は1社分の決算発表予定を表す。
// DateとSymbolは常に存在する。その他のフィールドはプロバイダや
// エンリッチメントの有無によって欠落しうる。
type EarningsEvent struct {
	Date            string              `json:"date"` // プロバイダ基準の日付（YYYY-MM-DD）
	Symbol          string              `json:"symbol"`
	CompanyName     string              `json:"companyName,omitempty"`
	EPSEstimate     decimal.NullDecimal `json:"epsEstimate"`
	EPSActual       decimal.NullDecimal `json:"epsActual"`
	RevenueEstimate *int64              `json:"revenueEstimate"`
	RevenueActual   *int64              `json:"revenueActual"`
	Quarter         *int                `json:"quarter"`
	Year            *int                `json:"year"`
	Time            EventTime           `json:"time"`

	// 以下はエンリッチメントでのみ設定される。
	Logo      *string  `json:"logo"`
	Industry  *string  `json:"industry"`
	MarketCap *float64 `json:"marketCap"`
}

// ApplyProfile は企業プロフィールでロゴ・業種・時価総額・社名を上書きする。
func (e *EarningsEvent) ApplyProfile(p *CompanyProfile) {
	if p == nil {
		return
	}
	if p.Logo != "" {
		logo := p.Logo
		e.Logo = &logo
	}
	if p.Industry != "" {
		industry := p.Industry
		e.Industry = &industry
	}
	if p.MarketCapitalization != 0 {
		mc := p.MarketCapitalization
		e.MarketCap = &mc
	}
	if p.Name != "" {
		e.CompanyName = p.Name
	}
}

// CompanyProfile はエンリッチメント用の静的な企業メタデータ。
type CompanyProfile struct {
	Logo                 string  `json:"logo"`
	Name                 string  `json:"name"`
	Ticker               string  `json:"ticker"`
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Industry             string  `json:"finnhubIndustry"`
}

// Int64Ptr はint64のポインタを返す。
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr はintのポインタを返す。
func IntPtr(v int) *int { return &v }

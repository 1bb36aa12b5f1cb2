package handler

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/kolboard/internal/earnings"
	"github.com/hitoshi/kolboard/internal/middleware"
	"github.com/hitoshi/kolboard/internal/model"
)

// EarningsSourceHeader は決算カレンダーの取得元を返すレスポンスヘッダー。
const EarningsSourceHeader = "X-Earnings-Source"

// symbolPattern は受け付ける銘柄コードの形式（例: AAPL, BRK.B, RDS-A）。
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// EarningsServiceInterface は決算カレンダーハンドラーが必要とするサービスインターフェース。
type EarningsServiceInterface interface {
	Calendar(ctx context.Context, r model.DateRange, enrich bool) earnings.Result
	CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange, enrich bool) earnings.Result
}

// EarningsHandlerConfig は決算カレンダーハンドラーの設定。
type EarningsHandlerConfig struct {
	// DefaultRangeDays はtoを省略した場合にfromに加算する日数。
	DefaultRangeDays int
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// EarningsHandler は決算カレンダーのHTTPハンドラー。
type EarningsHandler struct {
	service EarningsServiceInterface
	config  EarningsHandlerConfig
	logger  *slog.Logger
}

// NewEarningsHandler はEarningsHandlerを生成する。
func NewEarningsHandler(service EarningsServiceInterface, config EarningsHandlerConfig, logger *slog.Logger) *EarningsHandler {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.DefaultRangeDays <= 0 {
		config.DefaultRangeDays = 7
	}
	return &EarningsHandler{service: service, config: config, logger: logger}
}

// GetCalendar は決算カレンダーを返す。プロバイダがすべて利用できない場合もモックデータで200を返す。
// GET /api/earnings?from=YYYY-MM-DD&to=YYYY-MM-DD&enrich=true&symbol=AAPL
func (h *EarningsHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	dr, err := model.NewDateRange(q.Get("from"), q.Get("to"), h.config.Now().UTC(), h.config.DefaultRangeDays)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	enrich := true
	if v := q.Get("enrich"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, r, model.NewInvalidParameterError("enrich", v))
			return
		}
		enrich = b
	}

	var result earnings.Result
	if v := q.Get("symbol"); v != "" {
		symbol := strings.ToUpper(strings.TrimSpace(v))
		if !symbolPattern.MatchString(symbol) {
			middleware.WriteError(w, r, model.NewInvalidParameterError("symbol", v))
			return
		}
		result = h.service.CalendarForSymbol(r.Context(), symbol, dr, enrich)
	} else {
		result = h.service.Calendar(r.Context(), dr, enrich)
	}

	events := result.Events
	if events == nil {
		events = []model.EarningsEvent{}
	}

	w.Header().Set(EarningsSourceHeader, result.Source)
	writeJSON(w, http.StatusOK, events)
}

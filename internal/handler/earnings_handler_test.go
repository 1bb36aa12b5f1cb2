package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/kolboard/internal/earnings"
	"github.com/hitoshi/kolboard/internal/middleware"
	"github.com/hitoshi/kolboard/internal/model"
)

// mockEarningsService はEarningsServiceInterfaceのモック。
type mockEarningsService struct {
	calendarFn  func(ctx context.Context, r model.DateRange, enrich bool) earnings.Result
	symbolFn    func(ctx context.Context, symbol string, r model.DateRange, enrich bool) earnings.Result
	lastRange   model.DateRange
	lastEnrich  bool
	lastSymbol  string
	calendarHit int
	symbolHit   int
}

func (m *mockEarningsService) Calendar(ctx context.Context, r model.DateRange, enrich bool) earnings.Result {
	m.calendarHit++
	m.lastRange, m.lastEnrich = r, enrich
	if m.calendarFn != nil {
		return m.calendarFn(ctx, r, enrich)
	}
	return earnings.Result{Source: earnings.SourceMock}
}

func (m *mockEarningsService) CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange, enrich bool) earnings.Result {
	m.symbolHit++
	m.lastSymbol, m.lastRange, m.lastEnrich = symbol, r, enrich
	if m.symbolFn != nil {
		return m.symbolFn(ctx, symbol, r, enrich)
	}
	return earnings.Result{Source: earnings.SourceMock}
}

var fixedNow = time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)

func newTestEarningsHandler(svc EarningsServiceInterface) *EarningsHandler {
	return NewEarningsHandler(svc, EarningsHandlerConfig{
		DefaultRangeDays: 7,
		Now:              func() time.Time { return fixedNow },
	}, slog.New(slog.DiscardHandler))
}

func TestEarningsHandler_GetCalendar_Defaults(t *testing.T) {
	svc := &mockEarningsService{
		calendarFn: func(ctx context.Context, r model.DateRange, enrich bool) earnings.Result {
			return earnings.Result{
				Events: []model.EarningsEvent{{Date: "2025-01-12", Symbol: "AAPL"}},
				Source: "finnhub",
			}
		},
	}
	h := newTestEarningsHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/earnings", nil)
	w := httptest.NewRecorder()
	h.GetCalendar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get(EarningsSourceHeader); got != "finnhub" {
		t.Errorf("%s = %q, want finnhub", EarningsSourceHeader, got)
	}

	want := model.DateRange{From: "2025-01-10", To: "2025-01-17"}
	if svc.lastRange != want {
		t.Errorf("range = %+v, want %+v", svc.lastRange, want)
	}
	if !svc.lastEnrich {
		t.Error("enrichのデフォルトがtrueでない")
	}

	var events []model.EarningsEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(events) != 1 || events[0].Symbol != "AAPL" {
		t.Errorf("events = %+v", events)
	}
}

func TestEarningsHandler_GetCalendar_EmptyIsArray(t *testing.T) {
	h := newTestEarningsHandler(&mockEarningsService{})

	w := httptest.NewRecorder()
	h.GetCalendar(w, httptest.NewRequest(http.MethodGet, "/api/earnings?from=2025-01-01&to=2025-01-02", nil))

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestEarningsHandler_GetCalendar_Symbol(t *testing.T) {
	svc := &mockEarningsService{}
	h := newTestEarningsHandler(svc)

	w := httptest.NewRecorder()
	h.GetCalendar(w, httptest.NewRequest(http.MethodGet, "/api/earnings?symbol=brk.b&enrich=false", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	if svc.symbolHit != 1 || svc.calendarHit != 0 {
		t.Errorf("calls: symbol=%d calendar=%d", svc.symbolHit, svc.calendarHit)
	}
	if svc.lastSymbol != "BRK.B" {
		t.Errorf("symbol = %q, want BRK.B", svc.lastSymbol)
	}
	if svc.lastEnrich {
		t.Error("enrich=false が反映されていない")
	}
}

func TestEarningsHandler_GetCalendar_Validation(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"不正なfrom", "from=2025-13-01", model.ErrCodeInvalidDate},
		{"不正なto", "from=2025-01-01&to=tomorrow", model.ErrCodeInvalidDate},
		{"from > to", "from=2025-02-01&to=2025-01-01", model.ErrCodeInvalidDateRange},
		{"範囲が長すぎる", "from=2025-01-01&to=2025-06-01", model.ErrCodeInvalidDateRange},
		{"不正なenrich", "enrich=maybe", model.ErrCodeInvalidParameter},
		{"不正なsymbol", "symbol=AAPL%21", model.ErrCodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockEarningsService{}
			h := newTestEarningsHandler(svc)

			w := httptest.NewRecorder()
			h.GetCalendar(w, httptest.NewRequest(http.MethodGet, "/api/earnings?"+tt.query, nil))

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if svc.calendarHit+svc.symbolHit != 0 {
				t.Error("検証エラー時にサービスが呼ばれた")
			}
		})
	}
}

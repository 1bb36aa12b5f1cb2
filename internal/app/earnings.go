package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/kolboard/internal/earnings"
	"github.com/hitoshi/kolboard/internal/model"
)

// calendarService はearningsコマンドが必要とするサービスインターフェース。
type calendarService interface {
	Calendar(ctx context.Context, r model.DateRange, enrich bool) earnings.Result
	CalendarForSymbol(ctx context.Context, symbol string, r model.DateRange, enrich bool) earnings.Result
}

type earningsOptions struct {
	From     string
	To       string
	Symbol   string
	NoEnrich bool
}

// runEarnings は決算カレンダーを1回取得し、JSON配列としてoutに書き出す。
// 日付の解釈はAPIの /api/earnings と同じ。
func runEarnings(
	ctx context.Context,
	svc calendarService,
	out io.Writer,
	log *slog.Logger,
	opts earningsOptions,
	now time.Time,
	defaultDays int,
) error {
	dr, err := model.NewDateRange(opts.From, opts.To, now.UTC(), defaultDays)
	if err != nil {
		return err
	}

	var res earnings.Result
	if symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol)); symbol != "" {
		res = svc.CalendarForSymbol(ctx, symbol, dr, !opts.NoEnrich)
	} else {
		res = svc.Calendar(ctx, dr, !opts.NoEnrich)
	}

	log.Info("earnings calendar fetched",
		slog.String("from", dr.From),
		slog.String("to", dr.To),
		slog.String("source", res.Source),
		slog.Int("events", len(res.Events)),
		slog.Bool("enriched", res.Enriched),
	)

	events := res.Events
	if events == nil {
		events = []model.EarningsEvent{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

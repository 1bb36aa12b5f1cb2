package model

import (
	"time"
)

// MaxDateRangeDays は1リクエストで指定できる最大日数。
const MaxDateRangeDays = 92

// DateRange は両端を含む日付範囲（YYYY-MM-DD）。
type DateRange struct {
	From string
	To   string
}

// NewDateRange は入力文字列から日付範囲を構築する。
// fromが空の場合はnowの日付、toが空の場合はfrom+defaultDays日を使用する。
// 不正な日付、from > to、最大日数超過の場合はAPIErrorを返す。
func NewDateRange(from, to string, now time.Time, defaultDays int) (DateRange, error) {
	var start time.Time
	if from == "" {
		start = truncateDay(now)
	} else {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return DateRange{}, NewInvalidDateError("from", from)
		}
		start = t
	}

	var end time.Time
	if to == "" {
		end = start.AddDate(0, 0, defaultDays)
	} else {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return DateRange{}, NewInvalidDateError("to", to)
		}
		end = t
	}

	if end.Before(start) {
		return DateRange{}, NewInvalidDateRangeError("fromはto以前の日付を指定してください")
	}
	if end.Sub(start) > MaxDateRangeDays*24*time.Hour {
		return DateRange{}, NewInvalidDateRangeError("日付範囲が長すぎます")
	}

	return DateRange{
		From: start.Format(time.DateOnly),
		To:   end.Format(time.DateOnly),
	}, nil
}

// Contains はdateが範囲内にあるかを返す。
// YYYY-MM-DD形式の文字列は辞書順と日付順が一致する。
func (r DateRange) Contains(date string) bool {
	return date >= r.From && date <= r.To
}

// Days は範囲内の日付を昇順で返す。
func (r DateRange) Days() []string {
	start, err := time.Parse(time.DateOnly, r.From)
	if err != nil {
		return nil
	}
	end, err := time.Parse(time.DateOnly, r.To)
	if err != nil {
		return nil
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(time.DateOnly))
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

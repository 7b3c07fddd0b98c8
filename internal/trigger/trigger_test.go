package trigger

import (
	"errors"
	"testing"
	"time"

	"marketsched/internal/calendar"
)

func testCal() calendar.Calendar {
	m, _ := calendar.ParseWindow("09:30", "11:30")
	a, _ := calendar.ParseWindow("13:00", "15:00")
	return calendar.New(m, a, time.UTC)
}

func TestParseVocabulary(t *testing.T) {
	t.Parallel()
	cal := testCal()
	tests := []struct {
		expr     string
		kind     Kind
		interval time.Duration
		hour     int
		minute   int
	}{
		{expr: "every_minute", kind: KindEveryMinute, interval: time.Minute},
		{expr: "every_5_minutes", kind: KindEveryNMinutes, interval: 5 * time.Minute},
		{expr: "every_10_minutes", kind: KindEveryNMinutes, interval: 10 * time.Minute},
		{expr: "every_30_minutes", kind: KindEveryNMinutes, interval: 30 * time.Minute},
		{expr: "every_hour", kind: KindEveryHour, interval: time.Hour},
		{expr: "market_open", kind: KindMarketOpen, hour: 9, minute: 30},
		{expr: "market_close", kind: KindMarketClose, hour: 15},
		{expr: "daily_08_30", kind: KindDaily, hour: 8, minute: 30},
		{expr: "daily_16_00", kind: KindDaily, hour: 16},
		{expr: "weekdays_only", kind: KindWeekdays, hour: 9},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			tr, err := Parse(tt.expr, cal)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			if tr.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", tr.Kind, tt.kind)
			}
			if tr.Interval != tt.interval {
				t.Fatalf("Interval = %v, want %v", tr.Interval, tt.interval)
			}
			if tr.Hour != tt.hour || tr.Minute != tt.minute {
				t.Fatalf("at %02d:%02d, want %02d:%02d", tr.Hour, tr.Minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	t.Parallel()
	cal := testCal()
	for _, expr := range []string{
		"", "hourly", "every_", "every_minutes", "every_0_minutes", "every_60_minutes",
		"daily_24_00", "daily_09_60", "daily_0900", "cron:* * * * *", "0 9 * * *",
	} {
		if _, err := Parse(expr, cal); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidSchedule", expr, err)
		}
	}
}

func TestDailyNext(t *testing.T) {
	t.Parallel()
	tr, err := Parse("daily_09_00", testCal())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	before := time.Date(2026, 8, 24, 8, 59, 0, 0, time.UTC) // Monday
	next := tr.Next(before)
	want := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}

	// After the 09:00 firing instant the next run is tomorrow, so sub-minute
	// ticks inside 09:00:00-09:00:59 cannot fire a second time.
	for _, sec := range []int{0, 1, 30, 59} {
		at := time.Date(2026, 8, 24, 9, 0, sec, 0, time.UTC)
		got := tr.Next(at)
		tomorrow := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
		if !got.Equal(tomorrow) {
			t.Fatalf("Next(09:00:%02d) = %v, want %v", sec, got, tomorrow)
		}
	}
}

func TestMarketOpenSkipsWeekend(t *testing.T) {
	t.Parallel()
	tr, err := Parse("market_open", testCal())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Friday 2026-08-28 after the open: next open is Monday.
	friday := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	next := tr.Next(friday)
	want := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestEveryNMinutesNext(t *testing.T) {
	t.Parallel()
	tr, err := Parse("every_5_minutes", testCal())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	at := time.Date(2026, 8, 24, 10, 2, 10, 0, time.UTC)
	next := tr.Next(at)
	want := time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

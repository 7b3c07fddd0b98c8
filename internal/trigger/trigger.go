package trigger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"marketsched/internal/calendar"
)

// ErrInvalidSchedule is returned for expressions outside the vocabulary.
var ErrInvalidSchedule = errors.New("unrecognized schedule expression")

type Kind int

const (
	KindEveryMinute Kind = iota
	KindEveryNMinutes
	KindEveryHour
	KindMarketOpen
	KindMarketClose
	KindDaily
	KindWeekdays
)

func (k Kind) String() string {
	switch k {
	case KindEveryMinute:
		return "every_minute"
	case KindEveryNMinutes:
		return "every_n_minutes"
	case KindEveryHour:
		return "every_hour"
	case KindMarketOpen:
		return "market_open"
	case KindMarketClose:
		return "market_close"
	case KindDaily:
		return "daily"
	case KindWeekdays:
		return "weekdays_only"
	default:
		return "unknown"
	}
}

// weekdays_only fires at this reference time; the vocabulary does not encode
// one, so it is fixed here.
const weekdaysRefHour, weekdaysRefMinute = 9, 0

// Trigger is a parsed schedule expression. Immutable after Parse.
type Trigger struct {
	Kind Kind
	Raw  string

	// Interval is set for the every_* kinds.
	Interval time.Duration
	// Hour/Minute are set for the once-per-day kinds.
	Hour   int
	Minute int

	sched cron.Schedule
	loc   *time.Location
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates expr against the vocabulary and compiles it. The market
// calendar supplies the open/close instants for the market_* kinds and the
// evaluation timezone.
func Parse(expr string, cal calendar.Calendar) (Trigger, error) {
	raw := strings.TrimSpace(expr)
	t := Trigger{Raw: raw, loc: cal.Location()}

	switch raw {
	case "every_minute":
		t.Kind = KindEveryMinute
		t.Interval = time.Minute
		return t.compile("* * * * *")
	case "every_hour":
		t.Kind = KindEveryHour
		t.Interval = time.Hour
		return t.compile("0 * * * *")
	case "market_open":
		t.Kind = KindMarketOpen
		t.Hour, t.Minute = cal.OpenTime()
		return t.compile(fmt.Sprintf("%d %d * * 1-5", t.Minute, t.Hour))
	case "market_close":
		t.Kind = KindMarketClose
		t.Hour, t.Minute = cal.CloseTime()
		return t.compile(fmt.Sprintf("%d %d * * 1-5", t.Minute, t.Hour))
	case "weekdays_only":
		t.Kind = KindWeekdays
		t.Hour, t.Minute = weekdaysRefHour, weekdaysRefMinute
		return t.compile(fmt.Sprintf("%d %d * * 1-5", t.Minute, t.Hour))
	}

	if n, ok := matchEveryMinutes(raw); ok {
		if n < 1 || n > 59 {
			return Trigger{}, fmt.Errorf("%w: %q (interval out of range)", ErrInvalidSchedule, raw)
		}
		t.Kind = KindEveryNMinutes
		t.Interval = time.Duration(n) * time.Minute
		return t.compile(fmt.Sprintf("*/%d * * * *", n))
	}
	if h, m, ok := matchDaily(raw); ok {
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return Trigger{}, fmt.Errorf("%w: %q (time out of range)", ErrInvalidSchedule, raw)
		}
		t.Kind = KindDaily
		t.Hour, t.Minute = h, m
		return t.compile(fmt.Sprintf("%d %d * * *", m, h))
	}

	return Trigger{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, raw)
}

// Validate reports whether expr belongs to the vocabulary.
func Validate(expr string, cal calendar.Calendar) error {
	_, err := Parse(expr, cal)
	return err
}

// Next returns the first firing instant strictly after t.
func (tr Trigger) Next(t time.Time) time.Time {
	if tr.sched == nil {
		return time.Time{}
	}
	return tr.sched.Next(t.In(tr.loc))
}

func (tr Trigger) compile(spec string) (Trigger, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return Trigger{}, fmt.Errorf("compile %q: %w", tr.Raw, err)
	}
	tr.sched = sched
	return tr, nil
}

// matchEveryMinutes matches "every_<digits>_minutes".
func matchEveryMinutes(s string) (int, bool) {
	rest, ok := strings.CutPrefix(s, "every_")
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, "_minutes")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || digits == "" {
		return 0, false
	}
	return n, true
}

// matchDaily matches "daily_<HH>_<MM>".
func matchDaily(s string) (hour, minute int, ok bool) {
	rest, found := strings.CutPrefix(s, "daily_")
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}

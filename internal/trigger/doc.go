// Package trigger translates the closed vocabulary of schedule expressions
// into concrete next-run times.
//
// The vocabulary is intentionally small and named, not a cron grammar:
//
//	every_minute
//	every_{N}_minutes   (e.g. every_5_minutes; any N in 1..59 parses)
//	every_hour
//	market_open         fires once per weekday at session open
//	market_close        fires once per weekday at session close
//	daily_{HH}_{MM}     fires once per day at a wall-clock time
//	weekdays_only       fires once per weekday at a fixed reference time
//
// Expressions are parsed exactly once, at registration. The resulting Trigger
// carries a kind tag plus a compiled schedule used to compute successive fire
// instants; callers never re-match strings per tick. Because firing is driven
// by "now has reached the next computed instant", a daily trigger cannot
// re-fire inside the same minute window even with sub-second ticks.
package trigger

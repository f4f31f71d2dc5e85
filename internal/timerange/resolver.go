// Package timerange translates relative natural-language time expressions into
// absolute UTC instants under a caller-supplied timezone. Summary windows and
// deadline parsing share the same keyword-rule pattern; neither involves a
// trained model.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window is a resolved start/end instant pair plus a human-readable
// description shared between the manager and a delegated capability.
type Window struct {
	Start       time.Time
	End         time.Time
	Description string
}

// Location resolves an IANA timezone identifier, falling back to UTC when the
// identifier is empty or unknown.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	numericDate   = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?`)
	relativeCount = regexp.MustCompile(`(?:last|past)\s+(\d+)\s+(hour|day|week)s?`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Resolve turns a summary-range expression into a window. Unrecognized input
// falls back deterministically to the last 24 hours ending now.
func Resolve(expr, tz string, now time.Time) Window {
	loc := Location(tz)
	local := now.In(loc)
	lower := strings.ToLower(strings.TrimSpace(expr))

	// "last 3 days", "past 12 hours": checked before the bare keywords so a
	// counted expression is not swallowed by the "week" cases below
	if m := relativeCount.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n > 0 {
			var d time.Duration
			switch m[2] {
			case "hour":
				d = time.Duration(n) * time.Hour
			case "day":
				d = time.Duration(n) * 24 * time.Hour
			case "week":
				d = time.Duration(n) * 7 * 24 * time.Hour
			}
			return Window{
				Start:       now.Add(-d).UTC(),
				End:         now.UTC(),
				Description: fmt.Sprintf("the last %d %ss", n, m[2]),
			}
		}
	}

	switch {
	case strings.Contains(lower, "today"):
		start := startOfDay(local)
		return Window{
			Start:       start.UTC(),
			End:         endOfDay(local).UTC(),
			Description: fmt.Sprintf("today (%s)", start.Format("2006-01-02")),
		}
	case strings.Contains(lower, "yesterday"):
		prev := local.AddDate(0, 0, -1)
		start := startOfDay(prev)
		return Window{
			Start:       start.UTC(),
			End:         endOfDay(prev).UTC(),
			Description: fmt.Sprintf("yesterday (%s)", start.Format("2006-01-02")),
		}
	case strings.Contains(lower, "this week"), strings.Contains(lower, "past week"), strings.Contains(lower, "last week"):
		start := startOfDay(local.AddDate(0, 0, -6))
		return Window{
			Start:       start.UTC(),
			End:         now.UTC(),
			Description: fmt.Sprintf("the last 7 days (since %s)", start.Format("2006-01-02")),
		}
	case strings.Contains(lower, "last month"):
		first := time.Date(local.Year(), local.Month()-1, 1, 0, 0, 0, 0, loc)
		// day zero of this month is the last day of the previous one
		last := time.Date(local.Year(), local.Month(), 0, 0, 0, 0, 0, loc)
		return Window{
			Start:       first.UTC(),
			End:         endOfDay(last).UTC(),
			Description: fmt.Sprintf("last month (%s)", first.Format("January 2006")),
		}
	case strings.Contains(lower, "this month"), strings.Contains(lower, "past month"):
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return Window{
			Start:       start.UTC(),
			End:         now.UTC(),
			Description: fmt.Sprintf("this month (since %s)", start.Format("2006-01-02")),
		}
	}

	for name, day := range weekdays {
		if strings.Contains(lower, name) {
			prev := previousWeekday(local, day)
			return Window{
				Start:       startOfDay(prev).UTC(),
				End:         endOfDay(prev).UTC(),
				Description: fmt.Sprintf("%s (%s)", name, prev.Format("2006-01-02")),
			}
		}
	}

	if m := numericDate.FindStringSubmatch(lower); m != nil {
		if day, ok := literalDate(m, local, loc); ok {
			return Window{
				Start:       startOfDay(day).UTC(),
				End:         endOfDay(day).UTC(),
				Description: day.Format("2006-01-02"),
			}
		}
	}

	return Window{
		Start:       now.Add(-24 * time.Hour).UTC(),
		End:         now.UTC(),
		Description: "the last 24 hours",
	}
}

// ResolveDueDate turns a deadline expression into an end-of-day instant. The
// boolean is false when no rule matches, so the caller keeps the original
// literal string.
func ResolveDueDate(expr, tz string, now time.Time) (time.Time, bool) {
	loc := Location(tz)
	local := now.In(loc)
	lower := strings.ToLower(strings.TrimSpace(expr))
	if lower == "" {
		return time.Time{}, false
	}

	switch {
	case strings.Contains(lower, "tomorrow"), strings.Contains(lower, "next day"):
		return endOfDay(local.AddDate(0, 0, 1)).UTC(), true
	case strings.Contains(lower, "end of week"), strings.Contains(lower, "this friday"), strings.Contains(lower, "friday"):
		// on a Friday this must resolve to next week's Friday, not today
		return endOfDay(nextWeekday(local, time.Friday)).UTC(), true
	case strings.Contains(lower, "next week"), strings.Contains(lower, "monday"):
		return endOfDay(nextWeekday(local, time.Monday)).UTC(), true
	case strings.Contains(lower, "end of month"):
		// day zero of the next month is the last day of this one
		last := time.Date(local.Year(), local.Month()+1, 0, 0, 0, 0, 0, loc)
		return endOfDay(last).UTC(), true
	}

	if m := numericDate.FindStringSubmatch(lower); m != nil {
		if day, ok := literalDate(m, local, loc); ok {
			return endOfDay(day).UTC(), true
		}
	}

	return time.Time{}, false
}

func literalDate(m []string, local time.Time, loc *time.Location) (time.Time, bool) {
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := local.Year()
	if m[3] != "" {
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		year = y
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}

// previousWeekday returns the most recent occurrence of the target weekday
// before today, so "monday" asked on a Monday means a week ago.
func previousWeekday(local time.Time, target time.Weekday) time.Time {
	days := (int(local.Weekday()) - int(target) + 7) % 7
	if days == 0 {
		days = 7
	}
	return local.AddDate(0, 0, -days)
}

func nextWeekday(local time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(local.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return local.AddDate(0, 0, days)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

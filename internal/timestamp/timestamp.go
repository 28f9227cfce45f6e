// Package timestamp turns the human-readable dates rendered by the site
// ("vor 2 Stunden", "Gestern 14:30", "12.02.2026") into absolute instants.
package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxRelative bounds the N in "N units ago" so the duration cannot overflow.
const maxRelative = 1_000_000

var (
	relativeMarker = regexp.MustCompile(`(?i)\b(vor|ago)\b`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*(minute|min\b)`)
	hoursPattern   = regexp.MustCompile(`(?i)(\d+)\s*(stunde|hour|std\b)`)
	daysPattern    = regexp.MustCompile(`(?i)(\d+)\s*(tag|day)`)

	todayPattern     = regexp.MustCompile(`(?i)\b(heute|today)\b`)
	yesterdayPattern = regexp.MustCompile(`(?i)\b(gestern|yesterday)\b`)

	clockPattern = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	datePattern  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.?(\d{4})?`)
)

// Normalize converts text to an absolute time relative to now. It never
// fails: text matching no known pattern yields now. Results carry now's
// location and minute precision for clock-based forms.
//
// Patterns are tried in order: relative ("2 hours ago", "vor 5 Minuten"),
// today ("Heute 09:15"), yesterday ("Gestern 14:30") and explicit dates
// ("12.02.", "12.02.2026 18:00").
func Normalize(text string, now time.Time) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return now
	}

	if relativeMarker.MatchString(text) {
		return relative(text, now)
	}

	if todayPattern.MatchString(text) {
		if t, ok := atClock(text, now); ok {
			return t
		}
		return now
	}

	if yesterdayPattern.MatchString(text) {
		day := now.AddDate(0, 0, -1)
		if t, ok := atClock(text, day); ok {
			return t
		}
		return day
	}

	if t, ok := explicitDate(text, now); ok {
		return t
	}

	return now
}

func relative(text string, now time.Time) time.Time {
	if n, ok := leadingCount(minutesPattern, text); ok {
		return now.Add(-time.Duration(n) * time.Minute)
	}
	if n, ok := leadingCount(hoursPattern, text); ok {
		return now.Add(-time.Duration(n) * time.Hour)
	}
	if n, ok := leadingCount(daysPattern, text); ok {
		return now.AddDate(0, 0, -n)
	}
	return now
}

func leadingCount(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > maxRelative {
		return 0, false
	}
	return n, true
}

// atClock returns day's date at the HH:MM found in text.
func atClock(text string, day time.Time) (time.Time, bool) {
	hour, minute, ok := clock(text)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), true
}

func clock(text string) (int, int, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func explicitDate(text string, now time.Time) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}

	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return time.Time{}, false
	}

	hour, minute, ok := clock(text)
	if !ok {
		hour, minute = 0, 0
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location()), true
}

func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Accepted year range for model-supplied dates.
const (
	MinYear = 2000
	MaxYear = 2100
)

var (
	ddmmyyyyPattern = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	dmyPattern      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	isoDatePattern  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	hhmmPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ValidateAndFixDate normalises a model-supplied date to DD/MM/YYYY.
//
// DD/MM/YYYY is checked as is. One- or two-digit forms are read day first
// unless the first value cannot be a month and the second can, in which
// case the two are swapped. ISO YYYY-MM-DD is converted. Anything else, or
// a date that does not exist, returns ok=false and the caller falls back to
// the current date.
func ValidateAndFixDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if m := ddmmyyyyPattern.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := dmyPattern.FindStringSubmatch(s); m != nil {
		first, second, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if second > 12 && first >= 1 && first <= 12 {
			first, second = second, first
		}
		return formatDate(first, second, year)
	}

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}

	return "", false
}

func formatDate(day, month, year int) (string, bool) {
	if year < MinYear || year > MaxYear {
		return "", false
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !d.IsValid() {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year), true
}

// ValidateAndFixTime normalises a 24-hour HH:MM or H:MM time to HH:MM.
func ValidateAndFixTime(raw string) (string, bool) {
	m := hhmmPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", false
	}
	h, minute := atoi(m[1]), atoi(m[2])
	if h < 0 || h > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, minute), true
}

// ConvertDateFormat turns DD/MM/YYYY into YYYY-MM-DD.
func ConvertDateFormat(ddmmyyyy string) string {
	parts := strings.Split(ddmmyyyy, "/")
	if len(parts) != 3 {
		return ddmmyyyy
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

// CurrentDateTime returns now in loc as YYYY-MM-DD and HH:MM.
func CurrentDateTime(now time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return local.Format("2006-01-02"), local.Format("15:04")
}

// ResolveDateTime picks the entry date and time: the repaired model values
// when valid, otherwise the corresponding part of now in loc.
func ResolveDateTime(originalDate, originalTime *string, now time.Time, loc *time.Location) (date, clock string) {
	date, clock = CurrentDateTime(now, loc)
	if originalDate != nil {
		if fixed, ok := ValidateAndFixDate(*originalDate); ok {
			date = ConvertDateFormat(fixed)
		}
	}
	if originalTime != nil {
		if fixed, ok := ValidateAndFixTime(*originalTime); ok {
			clock = fixed
		}
	}
	return date, clock
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

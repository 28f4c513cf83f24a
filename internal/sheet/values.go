package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"2 Jan 2006",
	"2006/01/02",
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"Mon Jan 2 2006 15:04:05 GMT-0700",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04 pm",
	"3:04pm",
	"3:04:05 PM",
}

// ParseTime reads a timestamp cell written by this package (RFC3339) or typed
// by hand (Excel serial or a common layout).
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate returns value as YYYY-MM-DD when it can be read as a date,
// otherwise value unchanged.
func NormalizeDate(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if t, ok := ParseTime(trimmed); ok {
		return t.Format(DateLayout)
	}
	return trimmed
}

// NormalizeClock returns value as HH:MM when it can be read as a time of day,
// otherwise value unchanged. Spreadsheets store times as day fractions, so
// only numbers with a fractional part are read as serials; a whole number
// such as "1730" is left as typed.
func NormalizeClock(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(trimmed, 64); err == nil {
		frac := serial - math.Floor(serial)
		if frac == 0 {
			return trimmed
		}
		minutes := int(math.Round(frac*24*60)) % (24 * 60)
		return time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format(ClockLayout)
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(ClockLayout)
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(ClockLayout)
		}
	}
	return trimmed
}

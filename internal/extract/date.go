package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/cpetrack/internal/entry"
)

const (
	monthFull = `January|February|March|April|May|June|July|August|September|October|November|December`
	monthAbbr = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec`
)

var (
	reClassStartDate = regexp.MustCompile(`(?i)Class Start Date\s+(\w+)\s+(\d{1,2}),?\s+(\d{4})`)
	reClassEndDate   = regexp.MustCompile(`(?i)Class End Date\s+(\w+)\s+(\d{1,2}),?\s+(\d{4})`)
	reMonthLong      = regexp.MustCompile(`(?i)(` + monthFull + `)\s+(\d{1,2}),?\s+(\d{4})`)
	reNumericMDY     = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})\b`)
	reNumericYMD     = regexp.MustCompile(`\b(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})\b`)
	reMonthAbbrFirst = regexp.MustCompile(`(?i)\b((?:` + monthAbbr + `)[a-z]*)\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	reDayFirst       = regexp.MustCompile(`(?i)\b(\d{1,2})\s+((?:` + monthAbbr + `)[a-z]*)\.?\s+(\d{4})\b`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func baseDateRules() []rule[string] {
	return []rule[string]{
		{name: "month_long", re: reMonthLong, parse: monthDayYear},
		{name: "numeric_mdy", re: reNumericMDY, parse: numericMDY},
		{name: "numeric_ymd", re: reNumericYMD, parse: numericYMD},
		{name: "month_abbr", re: reMonthAbbrFirst, parse: monthDayYear},
		{name: "day_month_abbr", re: reDayFirst, parse: dayMonthYear},
	}
}

func vendorDateRules() []rule[string] {
	return []rule[string]{
		{name: "class_start_date", re: reClassStartDate, parse: monthDayYear},
		{name: "class_end_date", re: reClassEndDate, parse: monthDayYear},
	}
}

// monthDayYear parses submatches (month word, day, year).
func monthDayYear(m []string) (string, bool) {
	return calendarDate(m[3], monthWord(m[1]), m[2])
}

// dayMonthYear parses submatches (day, month word, year).
func dayMonthYear(m []string) (string, bool) {
	return calendarDate(m[3], monthWord(m[2]), m[1])
}

// numericMDY parses submatches (month, day, year). Numeric dates are month-first.
func numericMDY(m []string) (string, bool) {
	mon, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	return calendarDate(m[3], time.Month(mon), m[2])
}

// numericYMD parses submatches (year, month, day).
func numericYMD(m []string) (string, bool) {
	mon, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	return calendarDate(m[1], time.Month(mon), m[3])
}

// monthWord maps a month name or abbreviation to its month by its first three
// letters. Returns 0 for words that are not months.
func monthWord(w string) time.Month {
	w = strings.ToLower(strings.TrimSuffix(w, "."))
	if len(w) < 3 {
		return 0
	}
	return monthByPrefix[w[:3]]
}

// calendarDate validates the parts and formats them as YYYY-MM-DD.
// Two-digit years 00-49 are 20xx and 50-99 are 19xx; three-digit years are
// rejected. Days that do not exist in the month are rejected, not rolled over.
func calendarDate(yearStr string, month time.Month, dayStr string) (string, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return "", false
	}
	switch len(yearStr) {
	case 2:
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	case 4:
		if year < 1 {
			return "", false
		}
	default:
		return "", false
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return "", false
	}
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return "", false
	}
	return t.Format(entry.DateLayout), true
}

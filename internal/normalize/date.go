package normalize

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// datePatterns locate date-like substrings in OCR text. Prefix markers such
// as "EXP" or "best before" are stripped before parsing.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:exp|expiry|best before|use by)[\s.:]*(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})`),
	regexp.MustCompile(`(?i)(?:exp|expiry|best before|use by)[\s.:]*(\d{1,2}[-/.]\d{4})`),
	regexp.MustCompile(`\b(\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`),
	regexp.MustCompile(`\b(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{2,4})\b`),
	regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{2,4})\b`),
}

// dateFormats are tried in order against each extracted substring.
// Day-first formats lead: expiry labels are predominantly DD/MM.
var dateFormats = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"01-02-06",
	"1-2-06",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"02.01.06",
	"2 Jan 2006",
	"2 January 2006",
	"2 Jan 06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
}

// ExtractDate scans free text for expiry dates. When several distinct dates
// parse, the earliest one not in the past relative to now wins and the
// result is flagged ambiguous; with no future date the earliest overall is
// kept. Unparsable text reports found=false and is never an error.
func ExtractDate(text string, now time.Time) (date time.Time, ambiguous, found bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false, false
	}

	seen := map[time.Time]bool{}
	var dates []time.Time
	for _, pat := range datePatterns {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			d, ok := parseDate(m[1])
			if !ok || seen[d] {
				continue
			}
			seen[d] = true
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return time.Time{}, false, false
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	today := dayUTC(now)
	chosen := dates[0]
	for _, d := range dates {
		if !d.Before(today) {
			chosen = d
			break
		}
	}
	return chosen, len(dates) > 1, true
}

// monthYearFormats cover labels like "EXP 05/2024" carrying no day. They
// resolve to the last day of the printed month.
var monthYearFormats = []string{"01/2006", "1/2006", "01-2006"}

// parseDate tries each accepted format at day granularity in UTC.
func parseDate(s string) (time.Time, bool) {
	s = titleMonth(strings.TrimSpace(s))
	for _, layout := range monthYearFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return dayUTC(t.AddDate(0, 1, -1)), true
		}
	}
	for _, layout := range dateFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return dayUTC(t), true
		}
	}
	return time.Time{}, false
}

// titleMonth uppercases month-name initials so time.Parse layouts match.
func titleMonth(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if len(f) >= 3 {
			lower := strings.ToLower(f)
			for _, m := range []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"} {
				if strings.HasPrefix(lower, m) {
					fields[i] = strings.ToUpper(lower[:1]) + strings.TrimSuffix(lower[1:], ".")
					break
				}
			}
		}
	}
	return strings.Join(fields, " ")
}

// dayUTC truncates to UTC day granularity.
func dayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

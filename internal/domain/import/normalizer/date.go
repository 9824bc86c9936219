// Package normalizer turns raw statement cell text into typed values:
// dates under a known grammar, signed decimal amounts and cleaned
// descriptions.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateFormat names a date grammar.
type DateFormat string

const (
	DateISO     DateFormat = "iso"      // 2024-01-31, 2024/01/31
	DateDMY     DateFormat = "dmy"      // 31/01/2024, 31-01-2024, 31.01.2024
	DateMDY     DateFormat = "mdy"      // 01/31/2024
	DateLongDMY DateFormat = "long_dmy" // 31 January 2024, 31-Jan-24
	DateLongMDY DateFormat = "long_mdy" // January 31, 2024
)

// DateFormats lists every grammar in tie-break order.
var DateFormats = []DateFormat{DateISO, DateDMY, DateMDY, DateLongDMY, DateLongMDY}

// DetectionThreshold is the share of samples a grammar must parse to be chosen.
const DetectionThreshold = 0.8

var layouts = map[DateFormat][]string{
	DateISO: {"2006-1-2", "2006/1/2", "20060102"},
	DateDMY: {"2/1/2006", "2-1-2006", "2.1.2006", "2/1/06", "2-1-06", "2.1.06"},
	DateMDY: {"1/2/2006", "1-2-2006", "1.2.2006", "1/2/06", "1-2-06"},
	DateLongDMY: {
		"2 January 2006", "2 Jan 2006", "2-Jan-2006", "2-Jan-06", "2 Jan 06",
		"02 January 2006", "Monday, 2 January 2006",
	},
	DateLongMDY: {
		"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006",
		"Monday, January 2, 2006",
	},
}

// Time suffixes are dropped before matching: statements carry booking
// dates, and a clock time would break signature equality.
var timeSuffixRe = regexp.MustCompile(`[ T]\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?\s*(Z|[+-]\d{2}:?\d{2}|[AaPp][Mm])?$`)

// ParseFormat validates a user supplied grammar name.
func ParseFormat(s string) (DateFormat, error) {
	f := DateFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := layouts[f]; !ok {
		return "", fmt.Errorf("unknown date format %q", s)
	}
	return f, nil
}

// ParseDate parses raw under one grammar. The result is a UTC calendar date.
func ParseDate(raw string, format DateFormat) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	s = timeSuffixRe.ReplaceAllString(s, "")

	for _, layout := range layouts[format] {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// ParseDateAny tries every grammar in order.
func ParseDateAny(raw string) (time.Time, DateFormat, error) {
	for _, f := range DateFormats {
		if t, err := ParseDate(raw, f); err == nil {
			return t, f, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("invalid date %q", raw)
}

// DetectDateFormat runs every grammar over the non-empty samples and returns
// the one with the highest success ratio, provided it reaches
// DetectionThreshold. Ties go to the earlier grammar in DateFormats, so
// dates that are valid both ways (01/02/2024) resolve to day-first.
func DetectDateFormat(samples []string) (DateFormat, float64, bool) {
	var values []string
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}
	if len(values) == 0 {
		return "", 0, false
	}

	var (
		best      DateFormat
		bestRatio float64
	)
	for _, f := range DateFormats {
		ok := 0
		for _, v := range values {
			if _, err := ParseDate(v, f); err == nil {
				ok++
			}
		}
		ratio := float64(ok) / float64(len(values))
		if ratio > bestRatio {
			best, bestRatio = f, ratio
		}
	}
	if bestRatio < DetectionThreshold {
		return "", bestRatio, false
	}
	return best, bestRatio, true
}

// LooksLikeDate reports whether any grammar accepts s.
func LooksLikeDate(s string) bool {
	_, _, err := ParseDateAny(s)
	return err == nil
}

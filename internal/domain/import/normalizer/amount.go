package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberStyle is the decimal convention of an amount column.
type NumberStyle int

const (
	// StyleAuto infers the decimal separator per value.
	StyleAuto NumberStyle = iota
	// StyleDot is 1,234.56.
	StyleDot
	// StyleComma is 1.234,56.
	StyleComma
)

var currencyCodeRe = regexp.MustCompile(`(?i)\b(EUR|USD|GBP|BRL|CHF|JPY|SEK|NOK|DKK|PLN|CZK|HUF|AUD|CAD)\b|R\$|kr\.?`)

// ParseAmount parses a money amount into a signed decimal. Currency symbols
// and codes, spaces and thousands separators are stripped. A leading or
// trailing minus, or surrounding parentheses, make the value negative.
func ParseAmount(raw string, style NumberStyle) (decimal.Decimal, error) {
	s := strings.TrimSpace(currencyCodeRe.ReplaceAllString(raw, ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	for _, minus := range []string{"-", "\u2212"} {
		if strings.HasSuffix(s, minus) {
			negative = !negative
			s = strings.TrimSpace(strings.TrimSuffix(s, minus))
		}
	}

	var b strings.Builder
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		case (r == '-' || r == '\u2212') && digits == 0 && b.Len() == 0:
			negative = !negative
		case r == '+' && i == 0:
		case r == ' ' || r == '\u00a0' || r == '\'':
		case isCurrencySymbol(r):
		default:
			return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
		}
	}
	if digits == 0 {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}

	d, err := decimal.NewFromString(canonicalNumber(b.String(), style))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func isCurrencySymbol(r rune) bool {
	switch r {
	case '$', '€', '£', '¥', '₹', '₩', '₽', '₺', '₪', '฿', '₫', '₴', '₦':
		return true
	}
	return false
}

// canonicalNumber rewrites digits and separators into a dot-decimal string.
func canonicalNumber(s string, style NumberStyle) string {
	switch style {
	case StyleComma:
		return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	case StyleDot:
		return strings.ReplaceAll(s, ",", "")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return canonicalNumber(s, StyleComma)
		}
		return canonicalNumber(s, StyleDot)
	case lastComma >= 0:
		// A single comma followed by exactly three digits is a thousands
		// separator (1,234); anything else is a decimal comma.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return canonicalNumber(s, StyleComma)
		}
		return canonicalNumber(s, StyleDot)
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

// AmountHint classifies one sample: >0 comma-decimal, <0 dot-decimal,
// 0 when the sample alone cannot tell.
func AmountHint(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)
	if cleaned == "" {
		return 0
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			return 1
		}
		return -1
	case hasComma:
		if len(cleaned)-strings.LastIndex(cleaned, ",")-1 <= 2 {
			return 1
		}
	case hasDot:
		if len(cleaned)-strings.LastIndex(cleaned, ".")-1 <= 2 {
			return -1
		}
	}
	return 0
}

// DetectNumberStyle votes over samples. Without a majority it returns
// StyleAuto so each value is inferred on its own.
func DetectNumberStyle(samples []string) NumberStyle {
	comma, dot := 0, 0
	for _, s := range samples {
		switch h := AmountHint(s); {
		case h > 0:
			comma++
		case h < 0:
			dot++
		}
	}
	switch {
	case comma > dot:
		return StyleComma
	case dot > comma:
		return StyleDot
	default:
		return StyleAuto
	}
}

// LooksLikeAmount reports whether s parses as an amount.
func LooksLikeAmount(s string) bool {
	_, err := ParseAmount(s, StyleAuto)
	return err == nil
}

// SplitSigned turns a signed amount into the out and in legs, both >= 0.
func SplitSigned(d decimal.Decimal) (out, in decimal.Decimal) {
	if d.IsNegative() {
		return d.Neg(), decimal.Zero
	}
	return decimal.Zero, d
}

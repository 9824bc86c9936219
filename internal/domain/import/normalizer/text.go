package normalizer

import (
	"regexp"
	"strings"
)

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	refSuffixRe = regexp.MustCompile(`\s+[#*]?\d{4,}$`)
	dateTailRe  = regexp.MustCompile(`\s+\d{1,2}[/.-]\d{1,2}([/.-]\d{2,4})?$`)
	cardMaskRe  = regexp.MustCompile(`\s*\*+\d{2,4}\b`)
)

// Payment channel prefixes that carry no merchant information.
var channelPrefixes = []string{
	"COMPRA ", "COMPRAS ", "PAGAMENTO ", "PAG ", "PGO ",
	"TRF ", "TRANSF ", "TRANSFERENCIA ", "TRANSFERÊNCIA ",
	"MB WAY ", "MBWAY ", "MULTIBANCO ", "DD ",
	"VISA ", "MASTERCARD ", "MAESTRO ",
	"PURCHASE ", "PAYMENT ", "POS ", "CARD PAYMENT ", "DEBIT CARD ",
}

// CleanDescription trims and collapses internal whitespace. Case is kept:
// descriptions take part in signatures verbatim.
func CleanDescription(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// JoinMatchField concatenates the non-empty parts with single spaces.
func JoinMatchField(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanDescription(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// KeywordCandidate proposes a keyword for an unmatched description by
// dropping channel prefixes, card masks and trailing reference numbers or
// dates. "COMPRA PINGO DOCE ALVALADE 123456" yields "PINGO DOCE ALVALADE".
func KeywordCandidate(description string) string {
	s := strings.ToUpper(CleanDescription(description))
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = cardMaskRe.ReplaceAllString(s, "")
	for {
		trimmed := dateTailRe.ReplaceAllString(refSuffixRe.ReplaceAllString(s, ""), "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

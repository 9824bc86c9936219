// Package sniffer infers the layout of an unknown statement grid: where the
// table starts, whether it has a header row, what each column holds, and a
// column mapping the generic parser can use.
package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
)

// Common bank statement header keywords (multi-language)
var headerKeywords = []string{
	// Portuguese
	"data mov", "data valor", "descrição", "descricao", "débito", "debito", "crédito", "credito",
	"montante", "saldo", "categoria", "movimento",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant",
	"payee", "memo", "details", "type", "reference", "withdrawal", "deposit", "fee", "currency",
	// Spanish
	"fecha", "descripción", "descripcion", "importe", "cargo", "abono", "concepto",
}

// maxHeaderSearch bounds how far into the file the table start is searched.
const maxHeaderSearch = 20

// HeaderScore compares the first table row with the row below it. Keyword
// hits in row 1 add a point each, row 1 cells that look like dates or
// amounts take one away, and a row 1 text cell sitting above a date or
// amount cell adds one.
func HeaderScore(first, second tabular.Row) int {
	score := 0
	for i, cell := range first {
		if cell.IsEmpty() {
			continue
		}
		if looksTyped(cell) {
			score--
			continue
		}
		if keywordHits(cell.Raw) > 0 {
			score++
		}
		if below := second.At(i); !below.IsEmpty() && looksTyped(below) {
			score++
		}
	}
	return score
}

// HasHeaders reports whether row start of the grid is a header row.
func HasHeaders(g *tabular.Grid, start int) bool {
	return HeaderScore(g.Row(start), g.Row(start+1)) > 0
}

// TableStart finds the first row of the table, skipping preamble lines such
// as account holder and period details. All-text rows with header keywords
// win, preferring wider rows; otherwise the first of the widest rows is used.
func TableStart(g *tabular.Grid) int {
	keywordIdx, keywordScore := -1, 0
	fallbackIdx, fallbackWidth := -1, 0

	for i := 0; i < g.Len() && i < maxHeaderSearch; i++ {
		width := g.NonEmptyWidth(i)
		if width < 2 {
			continue
		}

		hits, typed := 0, 0
		for _, cell := range g.Row(i) {
			switch {
			case cell.IsEmpty():
			case looksTyped(cell):
				typed++
			case keywordHits(cell.Raw) > 0:
				hits++
			}
		}
		// Header rows hold text only; a data row can mention "deposit".
		if hits > 0 && typed == 0 {
			if score := width*10 + hits; score > keywordScore {
				keywordIdx, keywordScore = i, score
			}
			continue
		}
		if width > fallbackWidth {
			fallbackIdx, fallbackWidth = i, width
		}
	}

	switch {
	case keywordIdx >= 0 && keywordScore >= 20:
		return keywordIdx
	case fallbackIdx >= 0:
		return fallbackIdx
	default:
		return 0
	}
}

// Headers returns the trimmed header texts of row idx.
func Headers(g *tabular.Grid, idx int) []string {
	return g.Row(idx).Strings()
}

// Fingerprint hashes normalized header names so a known layout can be
// recognised again. Letters and digits are kept and lowercased.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

func keywordHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

func looksTyped(c tabular.Cell) bool {
	switch c.Kind {
	case tabular.Number, tabular.DateLike:
		return true
	case tabular.Text:
		return normalizer.LooksLikeDate(c.Raw) || normalizer.LooksLikeAmount(c.Raw)
	default:
		return false
	}
}

package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
)

var (
	ErrUnknownFormat = errors.New("unknown format")
	ErrMappingNeeded = errors.New("a column mapping is required")
)

// Preset is a named column mapping selected by file name.
type Preset struct {
	Name            string
	FilenamePattern string
	Mapping         sniffer.ColumnMapping
}

type filenameRule struct {
	formatID string
	preset   *Preset
	re       *regexp.Regexp
}

// Registry holds the known bank parsers in registration order, plus the
// file name rules used when no parser recognises the content.
type Registry struct {
	parsers []BankParser
	byID    map[string]BankParser
	rules   []filenameRule
	presets map[string]Preset
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]BankParser),
		presets: make(map[string]Preset),
	}
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Chase{}, `(?i)^chase`)
	r.Register(Revolut{}, `(?i)^account-statement_\d{4}-\d{2}-\d{2}`, `(?i)revolut`)
	r.Register(CGD{}, `(?i)^(cgd|caixa)[\W_]`, `(?i)comprovativo.*movimentos`)
	return r
}

// Register adds a parser and its file name patterns. Panics on a
// duplicate id or an invalid pattern.
func (r *Registry) Register(p BankParser, filenamePatterns ...string) {
	key := strings.ToLower(p.ID())
	if _, ok := r.byID[key]; ok || key == GenericID {
		panic("duplicate parser format: " + key)
	}
	rules := make([]filenameRule, 0, len(filenamePatterns))
	for _, pattern := range filenamePatterns {
		rules = append(rules, filenameRule{formatID: key, re: regexp.MustCompile(pattern)})
	}
	r.parsers = append(r.parsers, p)
	r.byID[key] = p
	r.rules = append(r.rules, rules...)
}

// RegisterPreset adds a mapping preset. Its pattern is tried after every
// parser's own patterns.
func (r *Registry) RegisterPreset(p Preset) error {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		return errors.New("preset needs a name")
	}
	if _, ok := r.byID[name]; ok || name == GenericID {
		return fmt.Errorf("preset %q clashes with a parser id", name)
	}
	if _, ok := r.presets[name]; ok {
		return fmt.Errorf("duplicate preset %q", name)
	}
	if err := p.Mapping.Validate(0); err != nil {
		return fmt.Errorf("preset %q: %w", name, err)
	}
	var re *regexp.Regexp
	if p.FilenamePattern != "" {
		var err error
		if re, err = regexp.Compile(p.FilenamePattern); err != nil {
			return fmt.Errorf("preset %q: invalid filename pattern: %w", name, err)
		}
	}

	p.Name = name
	r.presets[name] = p
	if re != nil {
		r.rules = append(r.rules, filenameRule{formatID: GenericID, preset: &p, re: re})
	}
	return nil
}

// Get returns the parser for id.
func (r *Registry) Get(id string) (BankParser, bool) {
	p, ok := r.byID[strings.ToLower(id)]
	return p, ok
}

// Parsers returns the registered parsers in registration order.
func (r *Registry) Parsers() []BankParser {
	return append([]BankParser(nil), r.parsers...)
}

// Preset returns a registered preset by name.
func (r *Registry) Preset(name string) (Preset, bool) {
	p, ok := r.presets[strings.ToLower(name)]
	return p, ok
}

// Detect asks every parser for a verdict and keeps the highest positive
// one; ties go to the parser registered first. The other positive verdicts
// are kept, ranked the same way, in Alternatives. Without a positive verdict
// the file name rules are tried, and failing those the result asks for a
// manual mapping.
func (r *Registry) Detect(g *tabular.Grid, fileName string) Detection {
	var ranked []Detection
	var reasons []string
	for _, p := range r.parsers {
		d := p.Detect(g)
		if d.Positive() {
			ranked = append(ranked, d)
			continue
		}
		if d.Reason != "" {
			reasons = append(reasons, d.Reason)
		}
	}
	if len(ranked) > 0 {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Confidence > ranked[j].Confidence
		})
		best := ranked[0]
		if len(ranked) > 1 {
			best.Alternatives = ranked[1:]
		}
		return best
	}

	base := filepath.Base(fileName)
	for _, rule := range r.rules {
		if !rule.re.MatchString(base) {
			continue
		}
		d := Detection{
			FormatID:   rule.formatID,
			Confidence: ConfidenceLow,
			Reason:     fmt.Sprintf("file name %q matches %s", base, rule.formatID),
		}
		if rule.preset != nil {
			m := rule.preset.Mapping
			d.Preset = rule.preset.Name
			d.Mapping = &m
			d.Reason = fmt.Sprintf("file name %q matches preset %s", base, rule.preset.Name)
		}
		return d
	}

	reason := "no parser recognised the file"
	if len(reasons) > 0 {
		reason += ": " + strings.Join(reasons, "; ")
	}
	return Detection{Confidence: ConfidenceNone, Reason: reason, NeedsMapping: true}
}

// Resolve returns the parser that should handle formatID. The generic id
// needs a mapping; a preset name resolves to the generic parser with the
// preset's mapping unless an explicit mapping overrides it.
func (r *Registry) Resolve(formatID string, mapping *sniffer.ColumnMapping) (BankParser, error) {
	id := strings.ToLower(strings.TrimSpace(formatID))
	if p, ok := r.byID[id]; ok {
		return p, nil
	}
	if preset, ok := r.presets[id]; ok {
		m := preset.Mapping
		if mapping != nil {
			m = *mapping
		}
		return &Generic{Mapping: m, FormatID: preset.Name}, nil
	}
	if id == GenericID || id == "" {
		if mapping == nil {
			return nil, ErrMappingNeeded
		}
		return NewGeneric(*mapping), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, formatID)
}

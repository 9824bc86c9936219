package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
)

// Rules is the YAML rules file: categories to seed and mapping presets.
//
//	categories:
//	  - name: Groceries
//	    keywords: [PINGO DOCE, LIDL]
//	presets:
//	  - name: millennium
//	    filename_pattern: (?i)^millennium
//	    mapping:
//	      date_column: 0
//	      description_column: 2
//	      amount_out_column: 3
//	      amount_in_column: 4
//	      has_headers: true
//	      decimal_comma: true
type Rules struct {
	Categories []categorization.Category `yaml:"categories"`
	Presets    []PresetRule              `yaml:"presets"`
}

// PresetRule is a named column mapping chosen by file name.
type PresetRule struct {
	Name            string                `yaml:"name"`
	FilenamePattern string                `yaml:"filename_pattern"`
	Mapping         sniffer.ColumnMapping `yaml:"mapping"`
}

// UnmarshalYAML leaves columns the file does not mention unset.
func (p *PresetRule) UnmarshalYAML(n *yaml.Node) error {
	type plain PresetRule
	out := plain{Mapping: sniffer.NewColumnMapping()}
	if err := n.Decode(&out); err != nil {
		return err
	}
	*p = PresetRule(out)
	return nil
}

// LoadRules reads a rules file. A missing file yields empty rules.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Rules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and checks a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for i, c := range r.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: %w", i+1, categorization.ErrEmptyName)
		}
		r.Categories[i].Keywords = categorization.NormalizeKeywords(c.Keywords)
	}
	owners := make(map[string]string)
	for _, c := range r.Categories {
		for _, kw := range c.Keywords {
			key := strings.ToUpper(kw)
			if owner, ok := owners[key]; ok && owner != c.Name {
				return nil, &categorization.KeywordConflictError{Keyword: kw, Category: owner}
			}
			owners[key] = c.Name
		}
	}
	return &r, nil
}

// Register adds the presets to a parser registry.
func (r *Rules) Register(reg *parser.Registry) error {
	for _, p := range r.Presets {
		if err := reg.RegisterPreset(parser.Preset{
			Name:            p.Name,
			FilenamePattern: p.FilenamePattern,
			Mapping:         p.Mapping,
		}); err != nil {
			return fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return nil
}

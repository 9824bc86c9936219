package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=ledger sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.MaxConnLifetime)
	assert.Equal(t, "EUR", cfg.Import.Currency)
	assert.Equal(t, categorization.ModeUncategorized, cfg.Scheduler.Mode)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger@db/ledger")
	t.Setenv("POSTGRES_MAX_CONN_IDLE_TIME", "30s")
	t.Setenv("RECATEGORIZE_MODE", "all")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("ARCHIVE_DISABLED", "true")
	t.Setenv("LEDGER_CURRENCY", "usd")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://ledger@db/ledger", cfg.Database.DSN())
	assert.Equal(t, 30*time.Second, cfg.Database.MaxConnIdleTime)
	assert.Equal(t, categorization.ModeAll, cfg.Scheduler.Mode)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Storage.Disabled)
	assert.Equal(t, "USD", cfg.Import.Currency)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("POSTGRES_DB=from_file\nRULES_FILE=/etc/ledger/rules.yaml\n"), 0o600))
	t.Setenv("POSTGRES_DB", "")
	t.Setenv("RULES_FILE", "")
	os.Unsetenv("POSTGRES_DB")
	os.Unsetenv("RULES_FILE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.Database.Database)
	assert.Equal(t, "/etc/ledger/rules.yaml", cfg.Import.RulesFile)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown mode", "RECATEGORIZE_MODE", "sometimes"},
		{"unknown level", "LOG_LEVEL", "loud"},
		{"unknown format", "LOG_FORMAT", "xml"},
		{"pool bounds", "POSTGRES_MIN_CONNS", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

const rulesYAML = `
categories:
  - name: Groceries
    keywords: [" PINGO DOCE ", LIDL, lidl]
  - name: Transport
    keywords: [UBER]
presets:
  - name: millennium
    filename_pattern: (?i)^millennium
    mapping:
      date_column: 0
      description_column: 2
      amount_out_column: 3
      has_headers: true
      decimal_comma: true
      date_format: dmy
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYAML))
	require.NoError(t, err)

	require.Len(t, rules.Categories, 2)
	assert.Equal(t, []string{"PINGO DOCE", "LIDL"}, rules.Categories[0].Keywords)

	require.Len(t, rules.Presets, 1)
	m := rules.Presets[0].Mapping
	assert.Equal(t, 0, m.DateColumn)
	assert.Equal(t, 3, m.AmountOutColumn)
	assert.Equal(t, -1, m.AmountInColumn, "columns left out of the file stay unset")
	assert.True(t, m.DecimalComma)

	reg := parser.NewRegistry()
	require.NoError(t, rules.Register(reg))
	preset, ok := reg.Preset("millennium")
	require.True(t, ok)
	assert.Equal(t, 2, preset.Mapping.DescriptionColumn)
}

func TestParseRules_Conflicts(t *testing.T) {
	_, err := ParseRules([]byte(`
categories:
  - name: Coffee
    keywords: [STARBUCKS]
  - name: Retail
    keywords: [starbucks]
`))
	var conflict *categorization.KeywordConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Coffee", conflict.Category)

	_, err = ParseRules([]byte("categories:\n  - keywords: [X]\n"))
	assert.ErrorIs(t, err, categorization.ErrEmptyName)
}

func TestLoadRules_MissingFile(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "rules.yaml"))
	require.NoError(t, err)
	assert.Empty(t, rules.Categories)
	assert.Empty(t, rules.Presets)
}

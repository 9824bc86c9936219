package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger/repository"
	"github.com/FACorreiaa/statement-ledger/pkg/config"
	"github.com/FACorreiaa/statement-ledger/pkg/db"
	"github.com/FACorreiaa/statement-ledger/pkg/metrics"
	"github.com/FACorreiaa/statement-ledger/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Rules  *config.Rules
	DB     *db.DB
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store      *repository.PostgresStore
	Categories *categorization.Service
	Imports    *importservice.ImportService
	Archive    storage.Archive
	Parsers    *parser.Registry
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initRules(); err != nil {
		return nil, fmt.Errorf("failed to init rules: %w", err)
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initRules loads the rules file and registers its mapping presets.
func (d *Dependencies) initRules() error {
	rules, err := config.LoadRules(d.Config.Import.RulesFile)
	if err != nil {
		return err
	}
	d.Rules = rules

	d.Parsers = parser.DefaultRegistry()
	if err := rules.Register(d.Parsers); err != nil {
		return err
	}
	d.Logger.Debug("rules loaded",
		slog.String("file", d.Config.Import.RulesFile),
		slog.Int("categories", len(rules.Categories)),
		slog.Int("presets", len(rules.Presets)),
	)
	return nil
}

// initDatabase connects and applies pending migrations.
func (d *Dependencies) initDatabase(ctx context.Context) error {
	c := d.Config.Database
	database, err := db.New(ctx, db.Config{
		DSN:             c.DSN(),
		MaxConns:        int32(c.MaxConns),
		MinConns:        int32(c.MinConns),
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// initServices wires the store, the category service and the import service.
func (d *Dependencies) initServices() error {
	if d.Config.Observability.MetricsEnabled {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		d.Metrics = metrics.New(d.Registry)
	}

	d.Store = repository.NewPostgresStore(d.DB.Pool)

	d.Categories = categorization.NewService(d.Store, d.Logger).WithMetrics(d.Metrics)

	archive, err := storage.New(d.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to init archive: %w", err)
	}
	d.Archive = archive

	d.Imports = importservice.NewImportService(d.Store, d.Categories, d.Parsers, d.Logger).
		WithMetrics(d.Metrics)
	if archive != nil {
		d.Imports.WithArchive(archive)
	}

	d.Logger.Debug("services initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
}

// Package app assembles the services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/cache"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/gcs"
	"github.com/dvloznov/expense-assistant/internal/gemini"
	infraBQ "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/ledger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// App holds the wired services. AuditRepo and Storage are nil when BigQuery
// or GCS are not configured.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Store     *postgres.Store
	Cache     *cache.Cache
	Ledger    *ledger.Ledger
	Gemini    *gemini.Client
	AuditRepo *infraBQ.BigQueryAuditRepository
	Storage   *gcs.GCSStorageService
	Processor *pipeline.Processor
}

// New connects to every configured backend and builds the processor. The
// caller must Close the App.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Pool = pool
	a.Store = postgres.New(pool)

	if a.Cache, err = cache.New(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Ledger = ledger.New(a.Store, ledger.WithInvalidator(a.Cache))

	if a.Gemini, err = gemini.NewClient(ctx, cfg.GeminiModel); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	var auditor pipeline.Auditor = infraBQ.NopAuditor{}
	if cfg.GCPProjectID != "" {
		if a.AuditRepo, err = infraBQ.NewBigQueryAuditRepository(ctx, cfg.GCPProjectID, cfg.BQDataset); err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		auditor = a.AuditRepo
	} else {
		log.Warn().Msg("No GCP project configured - parse audit is disabled")
	}

	if cfg.GCSBucket != "" {
		if a.Storage, err = gcs.NewGCSStorageService(ctx, cfg.GCSBucket); err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
	}

	a.Processor = pipeline.NewProcessor(pipeline.Deps{
		Store:   a.Store,
		Parser:  a.Gemini,
		Ledger:  a.Ledger,
		Cache:   a.Cache,
		Auditor: auditor,
	}, Settings(cfg), log)

	ok = true
	return a, nil
}

// Settings maps the configuration onto processor settings.
func Settings(cfg *config.Config) pipeline.Settings {
	return pipeline.Settings{
		DefaultInstitution: cfg.DefaultInstitution,
		Location:           cfg.Location(),
		StoreTimeout:       cfg.StoreTimeout,
		ModelTimeout:       cfg.ModelTimeout,
		Limits:             Limits(cfg),
	}
}

// Limits returns the configured monthly quotas.
func Limits(cfg *config.Config) postgres.UsageLimits {
	return postgres.UsageLimits{
		AIParses:     cfg.AIParsesLimit,
		Transactions: cfg.TransactionsLimit,
	}
}

// Close releases every opened client.
func (a *App) Close() {
	if a.Storage != nil {
		_ = a.Storage.Close()
	}
	if a.AuditRepo != nil {
		_ = a.AuditRepo.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

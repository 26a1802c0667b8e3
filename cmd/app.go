package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"scouted/discovery-service/internal/classifier"
	"scouted/discovery-service/internal/config"
	"scouted/discovery-service/internal/db"
	"scouted/discovery-service/internal/digest"
	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/pipeline"
	"scouted/discovery-service/internal/scoring"
	"scouted/discovery-service/internal/scraper"
)

// app holds everything a subcommand may need, wired from Config.
type app struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client // nil without REDIS_URL
	store        *db.Store
	events       *db.RunEvents // nil without REDIS_URL
	scorer       *scoring.Scorer
	orchestrator *pipeline.Orchestrator
	ingester     *pipeline.Ingester
	mailer       *digest.ResendMailer // nil without RESEND_API_KEY
	digest       *digest.Builder
}

type appOption func(*digest.Options)

func withDigestWindow(window time.Duration, limit int) appOption {
	return func(o *digest.Options) {
		o.Window = window
		o.Limit = limit
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...appOption) (*app, error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres connected")
	a := &app{pool: pool, store: db.NewStore(pool, log)}

	// ── Redis ────────────────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.events = db.NewRunEvents(rdb)
		log.Info("redis connected")
	}

	// ── Pipeline ─────────────────────────────────────────────────────────────
	deps := scraper.Deps{Log: log, GoogleCSEKey: cfg.GoogleCSEAPIKey, GoogleCSEID: cfg.GoogleCSEID}
	a.scorer = scoring.New(catalog.Scoring)

	popts := pipeline.Options{
		Sources:    catalog.Sources,
		Registry:   scraper.DefaultRegistry(deps),
		Enricher:   scraper.NewEnricher(deps, scraper.DefaultEnrichOptions()),
		Keywords:   catalog.Keywords,
		Scorer:     a.scorer,
		Classifier: classifier.New(classifier.Options{APIKey: cfg.OpenRouterAPIKey, Log: log}),
		Store:      a.store,
		BatchSize:  cfg.UpsertBatchSize,
		Log:        log,
	}
	if a.events != nil {
		popts.Events = a.events
	}
	a.orchestrator = pipeline.New(popts)
	a.ingester = pipeline.NewIngester(log, a.scorer, a.store, a.store, cfg.UpsertBatchSize)

	// ── Digest ───────────────────────────────────────────────────────────────
	if cfg.ResendAPIKey != "" {
		a.mailer, err = digest.NewResendMailer(digest.ResendConfig{
			APIKey:         cfg.ResendAPIKey,
			DomainVerified: cfg.ResendDomainVerified,
		}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	dopts := digest.Options{
		UnsubscribeURL: "https://scouted.whybe.ai/api/unsubscribe?token=",
		Log:            log,
	}
	for _, o := range opts {
		o(&dopts)
	}
	var m digest.Mailer
	if a.mailer != nil {
		m = a.mailer
	}
	a.digest = digest.NewBuilder(a.store, a.scorer, m, dopts)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
}

// scouted-discovery-service
//
// Ingests education-funding opportunities from the configured sources,
// scores them for relevance and keeps the opportunities table current.
//
// Subcommands:
//
//	serve                 cron-driven pipeline + digest, HTTP API (default)
//	run                   one pipeline pass, summary JSON on stdout
//	upsert-opportunities  ingest a JSON array of opportunities (--file or stdin)
//	upsert-csr            ingest a JSON array of MCA CSR rows (--file, --fy)
//	digest                send the daily digest (--dry-run prints it instead)
//	migrate               create tables and indexes
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scouted/discovery-service/internal/config"
	"scouted/discovery-service/internal/db"
	"scouted/discovery-service/internal/digest"
	"scouted/discovery-service/internal/httpapi"
	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/pipeline"
	"scouted/discovery-service/internal/scheduler"
)

const version = "1.0.0"

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[discovery-service] Config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Options{Mode: cfg.LogMode, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[discovery-service] Logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd {
	case "serve":
		code = serve(ctx, cfg, log)
	case "run":
		code = runOnce(ctx, cfg, log)
	case "upsert-opportunities":
		code = upsertOpportunities(ctx, cfg, log, args)
	case "upsert-csr":
		code = upsertCSR(ctx, cfg, log, args)
	case "digest":
		code = sendDigest(ctx, cfg, log, args)
	case "migrate":
		code = migrate(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		code = 2
	}
	log.Sync()
	os.Exit(code)
}

// ─── serve ───────────────────────────────────────────────────────────────────

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	var dig scheduler.Digest
	if a.mailer != nil {
		dig = a.digest
	} else if cfg.DigestSchedule != "" {
		log.Warn("DIGEST_SCHEDULE set without RESEND_API_KEY, digest disabled")
	}
	sched := scheduler.New(a.orchestrator, dig, cfg.ScrapeIntervalHours, cfg.DigestSchedule, log)
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	if err := sched.Start(runCtx); err != nil {
		log.Error("scheduler start failed", "error", err)
		return 1
	}
	// Runs in flight are cancelled, then awaited, before the pool closes.
	defer sched.Stop()
	defer cancelRuns()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	opts := httpapi.Options{
		Store:   a.store,
		Scorer:  a.scorer,
		Version: version,
		Log:     log,
	}
	if a.events != nil {
		opts.Runs = a.events
	}
	if a.mailer != nil {
		opts.Mailer = a.mailer
		opts.Welcome = a.digest
	}
	httpapi.NewHandler(opts).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error("http server error", "error", err)
		return 1
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	log.Info("stopped")
	return 0
}

// ─── run ─────────────────────────────────────────────────────────────────────

func runOnce(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	sum, err := a.orchestrator.Run(ctx)
	printJSON(sum)
	if err != nil {
		log.Error("pipeline run aborted", "error", err)
		return 1
	}
	if sum.UpsertError != "" {
		return 1
	}
	return 0
}

// ─── batch ingestion ─────────────────────────────────────────────────────────

func upsertOpportunities(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("upsert-opportunities", flag.ContinueOnError)
	file := fs.String("file", "", "JSON array of opportunities (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	raw, err := readInput(*file)
	if err != nil {
		log.Error("read input failed", "error", err)
		return 1
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	rep, err := a.ingester.IngestOpportunities(ctx, raw)
	return reportIngest("opportunities", rep, err)
}

func upsertCSR(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("upsert-csr", flag.ContinueOnError)
	file := fs.String("file", "", "JSON array of CSR rows (default stdin)")
	fy := fs.String("fy", pipeline.DefaultFiscalYear, "fiscal year, YYYY-YY")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	raw, err := readInput(*file)
	if err != nil {
		log.Error("read input failed", "error", err)
		return 1
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	rep, err := a.ingester.IngestCSR(ctx, raw, *fy)
	return reportIngest("csr rows", rep, err)
}

// reportIngest prints the batch counts. Rejected input or a write that
// stored nothing exits non-zero; a partially stored batch does not.
func reportIngest(what string, rep pipeline.Report, err error) int {
	fmt.Printf("received %d %s, %d valid, %d unique, %d upserted\n", rep.Received, what, rep.Valid, rep.Unique, rep.Upserted)
	for _, s := range rep.Skipped {
		fmt.Printf("  skipped %v\n", s)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrEmptyBatch), errors.Is(err, pipeline.ErrNoValidRecords):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	case rep.Upserted == 0:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return 0
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// ─── digest ──────────────────────────────────────────────────────────────────

func sendDigest(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "print the plain-text digest instead of sending")
	days := fs.Int("days", 2, "look-back window in days")
	limit := fs.Int("limit", digest.DefaultLimit, "maximum opportunities")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *days < 1 || *limit < 1 {
		fmt.Fprintln(os.Stderr, "--days and --limit must be positive")
		return 2
	}

	a, err := newApp(ctx, cfg, log, withDigestWindow(time.Duration(*days)*24*time.Hour, *limit))
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	if *dryRun {
		items, err := a.digest.Collect(ctx)
		if err != nil {
			log.Error("digest collect failed", "error", err)
			return 1
		}
		fmt.Print(digest.RenderText(items, time.Duration(*days)*24*time.Hour))
		return 0
	}
	if a.mailer == nil {
		log.Error("RESEND_API_KEY is required to send the digest")
		return 1
	}

	res, err := a.digest.Send(ctx)
	printJSON(res)
	if err != nil {
		log.Error("digest failed", "error", err)
		return 1
	}
	return 0
}

// ─── migrate ─────────────────────────────────────────────────────────────────

func migrate(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "error", err)
		return 1
	}
	log.Info("schema up to date")
	return 0
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Package scheduler wires up the cron jobs that periodically run the
// ingestion pipeline and send the daily digest.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"scouted/discovery-service/internal/digest"
	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/pipeline"
)

// Pipeline runs one ingestion pass. See pipeline.Orchestrator.
type Pipeline interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// Digest sends one digest. See digest.Builder.
type Digest interface {
	Send(ctx context.Context) (digest.Result, error)
}

// Scheduler wraps robfig/cron. A job that is still running when its next
// tick fires skips that tick.
type Scheduler struct {
	cron       *cron.Cron
	pipeline   Pipeline
	digest     Digest
	log        *logger.Logger
	runSpec    string // e.g. "@every 24h"
	digestSpec string // empty disables the digest job
	running    atomic.Bool
	sending    atomic.Bool
	startup    sync.WaitGroup // the run launched by Start
}

// New creates a Scheduler that runs the pipeline every intervalHours hours
// and, when d is non-nil and digestSpec is set, the digest on digestSpec.
func New(p Pipeline, d Digest, intervalHours int, digestSpec string, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if d == nil {
		digestSpec = ""
	}
	return &Scheduler{
		cron:       cron.New(),
		pipeline:   p,
		digest:     d,
		log:        log.With("component", "scheduler"),
		runSpec:    fmt.Sprintf("@every %dh", intervalHours),
		digestSpec: digestSpec,
	}
}

// Start registers the jobs and starts the scheduler. It also runs the
// pipeline once immediately so the table is populated without waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.runSpec, func() { s.RunPipeline(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.runSpec, err)
	}
	if s.digestSpec != "" {
		if _, err := s.cron.AddFunc(s.digestSpec, func() { s.SendDigest(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc %q: %w", s.digestSpec, err)
		}
	}

	s.cron.Start()
	s.log.Info("cron started", "pipeline", s.runSpec, "digest", s.digestSpec)

	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		s.RunPipeline(ctx)
	}()
	return nil
}

// Stop halts the cron and waits for running jobs, including the startup
// run, to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.log.Info("cron stopped")
}

// RunPipeline runs one pass unless one is already in flight. It reports
// whether it ran.
func (s *Scheduler) RunPipeline(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("pipeline still running, tick skipped")
		return false
	}
	defer s.running.Store(false)

	sum, err := s.pipeline.Run(ctx)
	if err != nil {
		s.log.Error("pipeline run aborted", "error", err)
		return true
	}
	s.log.Info("pipeline run complete",
		"run_id", sum.RunID,
		"unique", sum.Unique,
		"upserted", sum.Upserted,
		"failed_sources", sum.FailedSources(),
	)
	return true
}

// SendDigest sends one digest unless a send is already in flight.
func (s *Scheduler) SendDigest(ctx context.Context) bool {
	if !s.sending.CompareAndSwap(false, true) {
		s.log.Warn("digest still sending, tick skipped")
		return false
	}
	defer s.sending.Store(false)

	res, err := s.digest.Send(ctx)
	if err != nil {
		s.log.Error("digest failed", "error", err, "sent", res.Sent)
		return true
	}
	s.log.Info("digest complete", "sent", res.Sent, "skipped", res.Skipped)
	return true
}

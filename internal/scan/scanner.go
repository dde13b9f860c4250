// Package scan runs every configured portal adapter for a keyword set and consolidates the
// records. One failing portal never aborts the run.
package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metrics"
)

const defaultConcurrency = 4

// AdapterLookup resolves the adapter for a portal's kind.
type AdapterLookup interface {
	Lookup(kind jobs.AdapterKind) (jobs.Adapter, bool)
}

// Config tunes the orchestrator.
type Config struct {
	// Concurrency bounds the number of adapter invocations in flight. 1 is strictly sequential.
	Concurrency int
}

// Result is the consolidated output of one scan.
type Result struct {
	Records  []jobs.JobRecord `json:"records"`
	Outcomes []jobs.Outcome   `json:"outcomes"`
}

// Failures counts outcomes that contributed nothing because of an error.
func (r Result) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failure != jobs.FailureNone {
			n++
		}
	}
	return n
}

// Scanner fans a keyword set out over the configured portals.
type Scanner struct {
	portals     []jobs.PortalConfig
	adapters    AdapterLookup
	concurrency int
	logger      *zap.Logger
}

// New builds a Scanner over portals in the given order.
func New(portals []jobs.PortalConfig, adapters AdapterLookup, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		portals:     append([]jobs.PortalConfig(nil), portals...),
		adapters:    adapters,
		concurrency: cfg.Concurrency,
		logger:      logger.Named("scan"),
	}
}

// Portals returns the portal list the scanner iterates.
func (s *Scanner) Portals() []jobs.PortalConfig {
	return append([]jobs.PortalConfig(nil), s.portals...)
}

type task struct {
	portal  jobs.PortalConfig
	keyword string
}

// plan expands portals into tasks: one per static portal, one per keyword for search-driven
// portals. Order is portal order with keyword order nested.
func plan(portals []jobs.PortalConfig, keywords jobs.Keywords) []task {
	if len(keywords) == 0 {
		return nil
	}
	tasks := make([]task, 0, len(portals))
	for _, p := range portals {
		if !p.Kind.PerKeyword() {
			tasks = append(tasks, task{portal: p})
			continue
		}
		for _, kw := range keywords {
			tasks = append(tasks, task{portal: p, keyword: kw})
		}
	}
	return tasks
}

// Run executes the scan. Records come back in task order regardless of concurrency. Tasks not
// started before ctx ends are reported as canceled.
func (s *Scanner) Run(ctx context.Context, keywords jobs.Keywords) Result {
	start := time.Now()
	tasks := plan(s.portals, keywords)
	outcomes := make([]jobs.Outcome, len(tasks))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(tasks); j++ {
				outcomes[j] = canceledOutcome(tasks[j], err)
			}
			break
		}
		g.Go(func() error {
			outcomes[i] = s.runTask(ctx, t, keywords)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Records: make([]jobs.JobRecord, 0), Outcomes: outcomes}
	for _, o := range outcomes {
		metrics.ObserveOutcome(o.Portal, string(o.Failure))
		for _, rec := range o.Records {
			metrics.ObserveRecords(rec.Source, 1)
		}
		result.Records = append(result.Records, o.Records...)
	}

	s.logger.Info("scan finished",
		zap.Strings("keywords", keywords),
		zap.Int("tasks", len(tasks)),
		zap.Int("records", len(result.Records)),
		zap.Int("failures", result.Failures()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

func (s *Scanner) runTask(ctx context.Context, t task, keywords jobs.Keywords) jobs.Outcome {
	if err := ctx.Err(); err != nil {
		return canceledOutcome(t, err)
	}
	adapter, ok := s.adapters.Lookup(t.portal.Kind)
	if !ok {
		err := fmt.Errorf("%w: no adapter for kind %s", jobs.ErrParse, t.portal.Kind)
		s.logger.Warn("portal skipped", zap.String("portal", t.portal.Name), zap.Error(err))
		return jobs.Failed(t.portal.Name, t.keyword, err)
	}
	return adapter.Scrape(ctx, t.portal, keywords, t.keyword)
}

func canceledOutcome(t task, err error) jobs.Outcome {
	return jobs.Failed(t.portal.Name, t.keyword, fmt.Errorf("not started: %w", err))
}

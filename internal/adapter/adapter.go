// Package adapter implements the per-portal scraping strategies. Each adapter turns one portal,
// and for search-driven portals one keyword, into an Outcome. Adapters never return errors or
// panic into the caller: every failure is classified on the Outcome and contributes no records.
package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// Deps are the collaborators shared by the adapters. Renderer, Detector, Documents and Driver
// are optional.
type Deps struct {
	Fetcher   jobs.Fetcher
	Renderer  jobs.Renderer
	Detector  jobs.Detector
	Documents jobs.DocumentExtractor
	Driver    jobs.SearchDriver
	Logger    *zap.Logger
}

// Registry maps adapter kinds to implementations.
type Registry struct {
	adapters map[jobs.AdapterKind]jobs.Adapter
}

// NewRegistry wires the three built-in adapters.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	static := NewStatic(deps)
	r := &Registry{adapters: make(map[jobs.AdapterKind]jobs.Adapter, 3)}
	r.Register(jobs.KindStatic, static)
	r.Register(jobs.KindKeywordDriven, NewKeyword(static, deps.Logger))
	r.Register(jobs.KindDynamicRendered, NewDynamic(deps.Driver, deps.Logger))
	return r
}

// Register installs or replaces the adapter for kind.
func (r *Registry) Register(kind jobs.AdapterKind, a jobs.Adapter) {
	r.adapters[kind] = a
}

// Lookup returns the adapter for kind.
func (r *Registry) Lookup(kind jobs.AdapterKind) (jobs.Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// scrapeFunc does the adapter-specific work. On failure it names the step that failed.
type scrapeFunc func() (records []jobs.JobRecord, step string, err error)

// run times fn, converts panics into parse failures and logs failures with the failing step.
func run(logger *zap.Logger, portal, keyword string, fn scrapeFunc) (out jobs.Outcome) {
	start := time.Now()
	logger = logger.With(zap.String("portal", portal))
	if keyword != "" {
		logger = logger.With(zap.String("keyword", keyword))
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: adapter panic: %v", jobs.ErrParse, r)
			logger.Error("adapter panicked", zap.Any("panic", r))
			out = jobs.Failed(portal, keyword, err)
		}
		out.Duration = time.Since(start)
	}()

	records, step, err := fn()
	if err != nil {
		out = jobs.Failed(portal, keyword, err)
		logger.Warn("portal scrape failed",
			zap.String("step", step),
			zap.String("failure", string(out.Failure)),
			zap.Error(err),
		)
		return out
	}
	logger.Debug("portal scraped", zap.Int("records", len(records)))
	return jobs.Succeeded(portal, keyword, records)
}

// origin returns scheme://host of raw, or "" when raw has no host.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// linkBase is the base relative links are resolved against.
func linkBase(portal jobs.PortalConfig, fetched string) string {
	if portal.BaseURL != "" {
		return portal.BaseURL
	}
	if o := origin(fetched); o != "" {
		return o
	}
	return origin(portal.URLTemplate)
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scrape aborted: %w", err)
	}
	return nil
}

// Package worker implements the scan execution loop behind the HTTP API.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/export"
	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metrics"
	"github.com/JakeFAU/govjob-scanner/internal/scan"
)

// Runner executes one keyword scan across every configured portal.
type Runner interface {
	Run(ctx context.Context, keywords jobs.Keywords) scan.Result
}

// Config controls Worker behavior.
type Config struct {
	// ExportPrefix is prepended to <scan_id>.csv when exporting results.
	ExportPrefix string
}

// Worker consumes queue items and runs scans.
type Worker struct {
	queue  jobs.Queue
	store  jobs.ScanStore
	blobs  jobs.BlobStore
	runner Runner
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New constructs a Worker. blobs may be nil, in which case results are not exported.
func New(
	queue jobs.Queue,
	store jobs.ScanStore,
	blobs jobs.BlobStore,
	runner Runner,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		store:   store,
		blobs:   blobs,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// Cancel stops the scan if this worker is running it. Unstarted portal tasks end as canceled
// and the partial results are still saved.
func (w *Worker) Cancel(scanID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.running[scanID]
	if ok {
		cancel()
	}
	return ok
}

func (w *Worker) track(ctx context.Context, scanID string) (context.Context, func()) {
	scanCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running[scanID] = cancel
	w.mu.Unlock()
	return scanCtx, func() {
		w.mu.Lock()
		delete(w.running, scanID)
		w.mu.Unlock()
		cancel()
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued scan", zap.String("scan_id", item.ScanID))
		w.processScan(ctx, item)
	}
}

func (w *Worker) processScan(ctx context.Context, item jobs.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("scan_id", item.ScanID))
	if w.runner == nil {
		logger.Error("no scanner configured")
		w.finish(ctx, item.ScanID, jobs.ScanFailed, "no scanner configured", jobs.ScanCounters{})
		return
	}

	scanCtx, untrack := w.track(ctx, item.ScanID)
	defer untrack()

	if current, err := w.store.GetScan(ctx, item.ScanID); err == nil && current.Status.Terminal() {
		logger.Info("skipping finished scan", zap.String("status", string(current.Status)))
		return
	}

	if err := w.store.UpdateScanStatus(ctx, item.ScanID, jobs.ScanRunning, "", jobs.ScanCounters{}); err != nil {
		logger.Error("update scan status failed", zap.Error(err))
		return
	}

	start := time.Now()
	result := w.runner.Run(scanCtx, item.Keywords)
	counters := jobs.ScanCounters{
		Tasks:    len(result.Outcomes),
		Failures: result.Failures(),
		Records:  len(result.Records),
	}

	// Persist even when the scan was canceled so partial results stay visible.
	persistCtx := context.WithoutCancel(ctx)
	if err := w.store.SaveResults(persistCtx, item.ScanID, result.Records, result.Outcomes); err != nil {
		logger.Error("save results failed", zap.Error(err))
		w.finish(persistCtx, item.ScanID, jobs.ScanFailed, fmt.Sprintf("save results: %v", err), counters)
		return
	}

	errText := ""
	if uri, err := w.export(persistCtx, item.ScanID, result.Records); err != nil {
		logger.Warn("export failed", zap.Error(err))
		errText = err.Error()
	} else if uri != "" {
		if err := w.store.SetExportURI(persistCtx, item.ScanID, uri); err != nil {
			logger.Warn("record export uri failed", zap.Error(err))
		}
	}

	status, reason := deriveFinalStatus(scanCtx, counters)
	if reason != "" {
		errText = reason
	}
	w.finish(persistCtx, item.ScanID, status, errText, counters)
	logger.Info("scan finished",
		zap.String("status", string(status)),
		zap.Int("tasks", counters.Tasks),
		zap.Int("failures", counters.Failures),
		zap.Int("records", counters.Records),
		zap.Duration("duration", time.Since(start)),
	)
}

func (w *Worker) finish(ctx context.Context, scanID string, status jobs.ScanStatus, errText string, counters jobs.ScanCounters) {
	metrics.ObserveScan(string(status))
	if err := w.store.UpdateScanStatus(ctx, scanID, status, errText, counters); err != nil {
		w.logger.Error("final scan status update failed", zap.String("scan_id", scanID), zap.Error(err))
	}
}

func (w *Worker) export(ctx context.Context, scanID string, records []jobs.JobRecord) (string, error) {
	if w.blobs == nil {
		return "", nil
	}
	data, err := export.CSV(records)
	if err != nil {
		return "", fmt.Errorf("encode csv: %w", err)
	}
	uri, err := w.blobs.PutObject(ctx, w.exportPath(scanID), export.CSVContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (w *Worker) exportPath(scanID string) string {
	prefix := strings.Trim(w.cfg.ExportPrefix, "/")
	if prefix == "" {
		return scanID + ".csv"
	}
	return fmt.Sprintf("%s/%s.csv", prefix, scanID)
}

func deriveFinalStatus(ctx context.Context, counters jobs.ScanCounters) (jobs.ScanStatus, string) {
	switch {
	case ctx.Err() != nil:
		return jobs.ScanCanceled, "scan canceled"
	case counters.Tasks > 0 && counters.Failures == counters.Tasks:
		return jobs.ScanFailed, "every portal failed"
	default:
		return jobs.ScanSucceeded, ""
	}
}

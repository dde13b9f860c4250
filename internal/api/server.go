package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/config"
	"github.com/JakeFAU/govjob-scanner/internal/export"
	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metrics"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer hands accepted scans to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item jobs.QueueItem) error
}

// Canceler stops scans that a worker is already running.
type Canceler interface {
	Cancel(scanID string) bool
}

// Hasher digests response bodies for ETags.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Server wires HTTP handlers to the dispatcher and scan store.
type Server struct {
	router   chi.Router
	store    jobs.ScanStore
	enqueuer Enqueuer
	canceler Canceler
	idGen    jobs.IDGenerator
	clock    jobs.Clock
	hasher   Hasher
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store jobs.ScanStore,
	enqueuer Enqueuer,
	idGen jobs.IDGenerator,
	clock jobs.Clock,
	hasher Hasher,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		enqueuer: enqueuer,
		idGen:    idGen,
		clock:    clock,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}
	if c, ok := enqueuer.(Canceler); ok {
		s.canceler = c
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.submitScan)
			r.Route("/{scan_id}", func(r chi.Router) {
				r.Get("/", s.getScan)
				r.Get("/results", s.getResults)
				r.Post("/cancel", s.cancelScan)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil || s.enqueuer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scan pipeline not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitScanRequest struct {
	Keywords json.RawMessage `json:"keywords"`
}

// parseKeywords accepts either a comma-separated string or a list of strings.
func (req submitScanRequest) parseKeywords() (jobs.Keywords, error) {
	raw := strings.TrimSpace(string(req.Keywords))
	if raw == "" || raw == "null" {
		return nil, errors.New("keywords required")
	}
	var text string
	if err := json.Unmarshal(req.Keywords, &text); err == nil {
		return jobs.ParseKeywords(text), nil
	}
	var list []string
	if err := json.Unmarshal(req.Keywords, &list); err == nil {
		return jobs.NewKeywords(list...), nil
	}
	return nil, errors.New("keywords must be a string or a list of strings")
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	keywords, err := req.parseKeywords()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(keywords) == 0 {
		s.writeError(w, http.StatusBadRequest, "keywords required")
		return
	}

	scanID, err := s.enqueueScan(r.Context(), keywords)
	if err != nil {
		s.logger.Error("submit scan failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID})
}

func (s *Server) enqueueScan(ctx context.Context, keywords jobs.Keywords) (string, error) {
	scanID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate scan id: %w", err)
	}
	now := s.clock.Now()
	scan := jobs.ScanJob{
		ID:        scanID,
		Keywords:  keywords,
		Status:    jobs.ScanQueued,
		Submitted: now,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		return "", fmt.Errorf("create scan: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := jobs.QueueItem{
		ScanID:    scanID,
		Keywords:  keywords,
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		if updateErr := s.store.UpdateScanStatus(
			context.WithoutCancel(ctx), scanID, jobs.ScanFailed, "enqueue failed", jobs.ScanCounters{},
		); updateErr != nil {
			s.logger.Warn("mark unqueued scan failed", zap.String("scan_id", scanID), zap.Error(updateErr))
		}
		return "", fmt.Errorf("enqueue scan: %w", err)
	}
	return scanID, nil
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	scan, err := s.store.GetScan(r.Context(), scanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	outcomes, err := s.store.ListOutcomes(r.Context(), scanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []jobs.Outcome{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scan": scan, "outcomes": outcomes})
}

type resultsResponse struct {
	ScanID  string           `json:"scan_id"`
	Status  jobs.ScanStatus  `json:"status"`
	Records []jobs.JobRecord `json:"records"`
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	scan, err := s.store.GetScan(r.Context(), scanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	records, err := s.store.ListRecords(r.Context(), scanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []jobs.JobRecord{}
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		s.writeJSON(w, http.StatusOK, resultsResponse{ScanID: scan.ID, Status: scan.Status, Records: records})
	case "csv":
		s.writeCSV(w, r, records)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, records []jobs.JobRecord) {
	body, err := export.CSV(records)
	if err != nil {
		s.logger.Error("encode csv failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to encode results")
		return
	}
	if s.hasher != nil {
		if digest, err := s.hasher.Hash(body); err == nil {
			etag := `"` + digest + `"`
			w.Header().Set("ETag", etag)
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}
	w.Header().Set("Content-Type", export.CSVContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CSVFilename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write csv failed", zap.Error(err))
	}
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	scan, err := s.store.GetScan(r.Context(), scanID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if scan.Status.Terminal() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("scan already %s", scan.Status))
		return
	}
	// A running scan is stopped through its worker, which then records the canceled status
	// together with the partial results and counters.
	if s.canceler != nil && s.canceler.Cancel(scanID) {
		s.logger.Info("stopping running scan", zap.String("scan_id", scanID))
		s.writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID, "status": "canceling"})
		return
	}
	if err := s.store.UpdateScanStatus(r.Context(), scanID, jobs.ScanCanceled, "canceled via API", scan.Counters); err != nil {
		s.writeStoreError(w, err)
		return
	}
	// The scan may have been picked up between the lookup and the update.
	if s.canceler != nil {
		s.canceler.Cancel(scanID)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"scan_id": scanID, "status": string(jobs.ScanCanceled)})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrScanNotFound) {
		s.writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	s.logger.Error("scan store failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "scan store unavailable")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// ScanStore keeps scans and their results in process memory. Everything is lost on restart.
type ScanStore struct {
	mu       sync.RWMutex
	scans    map[string]jobs.ScanJob
	records  map[string][]jobs.JobRecord
	outcomes map[string][]jobs.Outcome
}

// NewScanStore constructs a ScanStore.
func NewScanStore() *ScanStore {
	return &ScanStore{
		scans:    make(map[string]jobs.ScanJob),
		records:  make(map[string][]jobs.JobRecord),
		outcomes: make(map[string][]jobs.Outcome),
	}
}

// CreateScan stores a new scan.
func (s *ScanStore) CreateScan(_ context.Context, scan jobs.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[scan.ID]; exists {
		return errors.New("scan already exists")
	}
	scan.Keywords = append(jobs.Keywords(nil), scan.Keywords...)
	s.scans[scan.ID] = scan
	return nil
}

// UpdateScanStatus updates the status and counters for a scan, stamping start and finish times.
// A scan that already reached a terminal status is left untouched.
func (s *ScanStore) UpdateScanStatus(
	_ context.Context,
	scanID string,
	status jobs.ScanStatus,
	errText string,
	counters jobs.ScanCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("update %s: %w", scanID, jobs.ErrScanNotFound)
	}
	if scan.Status.Terminal() {
		return nil
	}
	scan.Status = status
	scan.ErrorText = errText
	scan.Counters = counters
	now := time.Now().UTC()
	if status == jobs.ScanRunning && scan.Started == nil {
		scan.Started = pointerTime(now)
	}
	if status.Terminal() {
		scan.Finished = pointerTime(now)
	}
	s.scans[scanID] = scan
	return nil
}

// SaveResults replaces the records and outcomes of a scan.
func (s *ScanStore) SaveResults(_ context.Context, scanID string, records []jobs.JobRecord, outcomes []jobs.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[scanID]; !ok {
		return fmt.Errorf("save results %s: %w", scanID, jobs.ErrScanNotFound)
	}
	s.records[scanID] = append([]jobs.JobRecord(nil), records...)
	s.outcomes[scanID] = append([]jobs.Outcome(nil), outcomes...)
	return nil
}

// SetExportURI records where the scan's CSV was uploaded.
func (s *ScanStore) SetExportURI(_ context.Context, scanID, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("set export uri %s: %w", scanID, jobs.ErrScanNotFound)
	}
	scan.ExportURI = uri
	s.scans[scanID] = scan
	return nil
}

// GetScan fetches a scan by ID.
func (s *ScanStore) GetScan(_ context.Context, scanID string) (jobs.ScanJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return jobs.ScanJob{}, fmt.Errorf("get %s: %w", scanID, jobs.ErrScanNotFound)
	}
	return scan, nil
}

// ListRecords returns a copy of the scan's records, empty until the scan finishes.
func (s *ScanStore) ListRecords(_ context.Context, scanID string) ([]jobs.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scans[scanID]; !ok {
		return nil, fmt.Errorf("list records %s: %w", scanID, jobs.ErrScanNotFound)
	}
	out := make([]jobs.JobRecord, len(s.records[scanID]))
	copy(out, s.records[scanID])
	return out, nil
}

// ListOutcomes returns a copy of the scan's per-task outcomes.
func (s *ScanStore) ListOutcomes(_ context.Context, scanID string) ([]jobs.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scans[scanID]; !ok {
		return nil, fmt.Errorf("list outcomes %s: %w", scanID, jobs.ErrScanNotFound)
	}
	out := make([]jobs.Outcome, len(s.outcomes[scanID]))
	copy(out, s.outcomes[scanID])
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

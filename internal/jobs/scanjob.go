package jobs

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrScanNotFound is returned by ScanStore lookups for unknown IDs.
var ErrScanNotFound = errors.New("scan not found")

// ErrQueueClosed is returned by a Queue that has been shut down.
var ErrQueueClosed = errors.New("queue closed")

// ScanStatus is the lifecycle state of an asynchronous scan.
type ScanStatus string

// Scan statuses.
const (
	ScanQueued    ScanStatus = "queued"
	ScanRunning   ScanStatus = "running"
	ScanSucceeded ScanStatus = "succeeded"
	ScanFailed    ScanStatus = "failed"
	ScanCanceled  ScanStatus = "canceled"
)

// Terminal reports whether the scan will not change state again.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanSucceeded, ScanFailed, ScanCanceled:
		return true
	default:
		return false
	}
}

// ScanCounters summarizes a finished scan.
type ScanCounters struct {
	Tasks    int `json:"tasks"`
	Failures int `json:"failures"`
	Records  int `json:"records"`
}

// ScanJob is one submitted keyword scan tracked by the HTTP API.
type ScanJob struct {
	ID        string       `json:"scan_id"`
	Keywords  Keywords     `json:"keywords"`
	Status    ScanStatus   `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error,omitempty"`
	Counters  ScanCounters `json:"counters"`
	ExportURI string       `json:"export_uri,omitempty"`
}

// QueueItem is the message handed from the API to the workers.
type QueueItem struct {
	ScanID    string   `json:"scan_id"`
	Keywords  Keywords `json:"keywords"`
	Submitted int64    `json:"submitted"`
}

// ScanStore persists scan jobs and their results.
type ScanStore interface {
	CreateScan(ctx context.Context, scan ScanJob) error
	UpdateScanStatus(ctx context.Context, scanID string, status ScanStatus, errText string, counters ScanCounters) error
	SaveResults(ctx context.Context, scanID string, records []JobRecord, outcomes []Outcome) error
	SetExportURI(ctx context.Context, scanID, uri string) error
	GetScan(ctx context.Context, scanID string) (ScanJob, error)
	ListRecords(ctx context.Context, scanID string) ([]JobRecord, error)
	ListOutcomes(ctx context.Context, scanID string) ([]Outcome, error)
}

// Queue hands scan requests to workers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore persists exported artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

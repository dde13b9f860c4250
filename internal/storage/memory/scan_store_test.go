package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

func TestScanStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	scan := jobs.ScanJob{ID: "scan-1", Keywords: jobs.NewKeywords("data"), Status: jobs.ScanQueued}

	require.NoError(t, store.CreateScan(ctx, scan))
	require.Error(t, store.CreateScan(ctx, scan), "duplicate scan")

	require.NoError(t, store.UpdateScanStatus(ctx, scan.ID, jobs.ScanRunning, "", jobs.ScanCounters{}))
	running, err := store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	require.NotNil(t, running.Started)
	require.Nil(t, running.Finished)

	records := []jobs.JobRecord{{Title: "Data Analyst", Link: "https://x.gov/1", Source: "X"}}
	outcomes := []jobs.Outcome{jobs.Succeeded("X", "", records)}
	require.NoError(t, store.SaveResults(ctx, scan.ID, records, outcomes))

	got, err := store.ListRecords(ctx, scan.ID)
	require.NoError(t, err)
	require.Equal(t, records, got)
	got[0].Title = "modified"
	again, err := store.ListRecords(ctx, scan.ID)
	require.NoError(t, err)
	require.Equal(t, "Data Analyst", again[0].Title, "ListRecords returns a copy")

	gotOutcomes, err := store.ListOutcomes(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, gotOutcomes, 1)

	require.NoError(t, store.SetExportURI(ctx, scan.ID, "memory://exports/scan-1.csv"))
	require.NoError(t, store.UpdateScanStatus(ctx, scan.ID, jobs.ScanSucceeded, "", jobs.ScanCounters{Tasks: 1, Records: 1}))

	final, err := store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.ScanSucceeded, final.Status)
	require.NotNil(t, final.Finished)
	require.Equal(t, 1, final.Counters.Records)
	require.Equal(t, "memory://exports/scan-1.csv", final.ExportURI)

	require.NoError(t, store.UpdateScanStatus(ctx, scan.ID, jobs.ScanRunning, "", jobs.ScanCounters{}))
	final, err = store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.ScanSucceeded, final.Status, "terminal status is sticky")
}

func TestScanStoreUnknownScan(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()

	_, err := store.GetScan(ctx, "missing")
	require.ErrorIs(t, err, jobs.ErrScanNotFound)
	_, err = store.ListRecords(ctx, "missing")
	require.ErrorIs(t, err, jobs.ErrScanNotFound)
	require.ErrorIs(t, store.UpdateScanStatus(ctx, "missing", jobs.ScanRunning, "", jobs.ScanCounters{}), jobs.ErrScanNotFound)
	require.ErrorIs(t, store.SaveResults(ctx, "missing", nil, nil), jobs.ErrScanNotFound)
}

func TestScanStoreEmptyResultsBeforeFinish(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	require.NoError(t, store.CreateScan(ctx, jobs.ScanJob{ID: "scan-2", Status: jobs.ScanQueued}))

	records, err := store.ListRecords(ctx, "scan-2")
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

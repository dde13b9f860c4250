package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan jobs.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := jobs.QueueItem{ScanID: "scan-1", Keywords: []string{"engineer"}}
	require.NoError(t, q.Enqueue(context.Background(), item))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "scan-1", got.ScanID)
		require.Equal(t, jobs.Keywords{"engineer"}, got.Keywords)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), jobs.QueueItem{ScanID: "primed"}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.EqualError(t, qEnqueue.Enqueue(ctx, jobs.QueueItem{}), "enqueue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), jobs.QueueItem{ScanID: "buffered"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), jobs.QueueItem{ScanID: "late"}), ErrClosed)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "buffered", item.ScanID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseUnblocksEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), jobs.QueueItem{ScanID: "blocked"})
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("enqueue stayed blocked after close")
	}
}

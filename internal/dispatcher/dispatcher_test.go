package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	queueMemory "github.com/JakeFAU/govjob-scanner/internal/queue/memory"
	"github.com/JakeFAU/govjob-scanner/internal/worker"
)

func newWorkers(queue jobs.Queue, n int) []*worker.Worker {
	out := make([]*worker.Worker, 0, n)
	for range n {
		out = append(out, worker.New(queue, nil, nil, nil, worker.Config{}, zap.NewNop()))
	}
	return out
}

func waitDone(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 2)}
	dispatch := New(queue, newWorkers(queue, 2))
	require.Equal(t, 2, dispatch.Size())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	for range 2 {
		select {
		case <-queue.started:
		case <-time.After(time.Second):
			t.Fatal("worker did not begin dequeuing")
		}
	}

	cancel()
	waitDone(t, done, "dispatcher did not stop after context cancel")
}

func TestRunReturnsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := queueMemory.NewQueue(1)
	dispatch := New(queue, newWorkers(queue, 3))

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	queue.Close()
	waitDone(t, done, "dispatcher did not stop after queue close")
}

func TestRunWithoutWorkersReturns(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		New(queueMemory.NewQueue(1), nil).Run(context.Background())
		close(done)
	}()
	waitDone(t, done, "empty pool should return immediately")
}

func TestEnqueueWrapsQueueErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	dispatch := New(&errorQueue{err: boom}, nil)

	err := dispatch.Enqueue(context.Background(), jobs.QueueItem{ScanID: "scan-1"})
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "enqueue scan scan-1: boom")

	queue := queueMemory.NewQueue(1)
	queue.Close()
	err = New(queue, nil).Enqueue(context.Background(), jobs.QueueItem{ScanID: "scan-2"})
	require.ErrorIs(t, err, jobs.ErrQueueClosed)
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, jobs.QueueItem) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (jobs.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return jobs.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, jobs.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (jobs.QueueItem, error) {
	return jobs.QueueItem{}, q.err
}

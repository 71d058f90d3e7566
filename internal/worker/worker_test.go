package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	queueMemory "github.com/JakeFAU/media-catalog-crawler/internal/queue/memory"
)

// TestWorkerSurvivesFailingItems ensures errors and panics do not stop the loop.
func TestWorkerSurvivesFailingItems(t *testing.T) {
	t.Parallel()

	q := queueMemory.NewQueue()
	order := make(chan string, 3)
	require.NoError(t, q.Enqueue(func(context.Context) error {
		order <- "error"
		return errors.New("boom")
	}))
	require.NoError(t, q.Enqueue(func(context.Context) error {
		order <- "panic"
		panic("kaboom")
	}))
	require.NoError(t, q.Enqueue(func(context.Context) error {
		order <- "ok"
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(q, zap.NewNop()).Run(ctx)
		close(done)
	}()

	for _, want := range []string{"error", "panic", "ok"} {
		select {
		case got := <-order:
			require.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("worker did not run %q item", want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

// TestWorkerPassesContext verifies items observe the worker's cancellation signal.
func TestWorkerPassesContext(t *testing.T) {
	t.Parallel()

	q := queueMemory.NewQueue()
	observed := make(chan error, 1)
	require.NoError(t, q.Enqueue(func(ctx context.Context) error {
		<-ctx.Done()
		observed <- ctx.Err()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(q, nil).Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-observed:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("item did not observe cancellation")
	}
	<-done
}

// TestWorkerRetriesAfterDequeueError keeps consuming after a transient dequeue failure.
func TestWorkerRetriesAfterDequeueError(t *testing.T) {
	t.Parallel()

	ran := make(chan struct{}, 1)
	q := &flakyQueue{
		items: []catalog.WorkItem{func(context.Context) error {
			ran <- struct{}{}
			return nil
		}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(q, zap.NewNop()).Run(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from dequeue error")
	}
}

type flakyQueue struct {
	failed bool
	items  []catalog.WorkItem
}

func (q *flakyQueue) Enqueue(item catalog.WorkItem) error {
	q.items = append(q.items, item)
	return nil
}

func (q *flakyQueue) Dequeue(ctx context.Context) (catalog.WorkItem, error) {
	if !q.failed {
		q.failed = true
		return nil, errors.New("transient")
	}
	if len(q.items) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *flakyQueue) Count() int { return len(q.items) }

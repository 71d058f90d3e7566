package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

func tagged(tag int, out chan<- int) catalog.WorkItem {
	return func(context.Context) error {
		out <- tag
		return nil
	}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ran := make(chan int, 1)
	result := make(chan catalog.WorkItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(tagged(1, ran)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case item := <-result:
		if err := item(context.Background()); err != nil {
			t.Fatalf("item error = %v", err)
		}
		if got := <-ran; got != 1 {
			t.Fatalf("expected item 1, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueFIFOAndCount(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	if !q.IsEmpty() {
		t.Fatal("expected new queue to be empty")
	}
	ran := make(chan int, 5)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(tagged(i, ran)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
	if got := q.Count(); got != 5 {
		t.Fatalf("expected count 5, got %d", got)
	}
	for i := 0; i < 5; i++ {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		_ = item(context.Background())
		if got := <-ran; got != i {
			t.Fatalf("expected item %d, got %d", i, got)
		}
	}
	if !q.IsEmpty() {
		t.Fatalf("expected empty queue, count=%d", q.Count())
	}
}

func TestQueueDeliversEachItemOnce(t *testing.T) {
	t.Parallel()

	const items = 200
	q := NewQueue()
	ran := make(chan int, items)
	for i := 0; i < items; i++ {
		if err := q.Enqueue(tagged(i, ran)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				_ = item(ctx)
			}
		}()
	}

	seen := make(map[int]bool, items)
	for len(seen) < items {
		select {
		case tag := <-ran:
			if seen[tag] {
				t.Fatalf("item %d delivered twice", tag)
			}
			seen[tag] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d items delivered", len(seen), items)
		}
	}
	cancel()
	wg.Wait()
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}
	if err := q.Enqueue(nil); err == nil {
		t.Fatal("expected nil item to be rejected")
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ran := make(chan int, 1)
	if err := q.Enqueue(tagged(7, ran)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	if err := q.Enqueue(tagged(8, ran)); err == nil || err.Error() != "queue closed" {
		t.Fatalf("expected enqueue after close to fail, got %v", err)
	}
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("expected pending item to drain after close, got %v", err)
	}
	if _, err := q.Dequeue(context.Background()); err == nil || err.Error() != "queue closed" {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}

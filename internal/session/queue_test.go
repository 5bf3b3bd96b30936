package session

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	// Keep test output quiet unless something is actually wrong.
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueueRunsInOrder(t *testing.T) {
	q := newTaskQueue(0, newTestLogger())
	defer q.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		q.Enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	waitFor(t, "all tasks to drain", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order: got sequence %v", i, got)
		}
	}
}

func TestQueueSerializesOverlappingEnqueues(t *testing.T) {
	q := newTaskQueue(0, newTestLogger())
	defer q.Close()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	done := 0

	task := func() {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		running--
		done++
		mu.Unlock()
	}

	// Enqueue from several goroutines at once; execution must stay serial.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(task)
		}()
	}
	wg.Wait()

	waitFor(t, "tasks to finish", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done == 10
	})

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("observed %d tasks in flight at once, want 1", maxRunning)
	}
}

func TestQueueSurvivesPanickingTask(t *testing.T) {
	q := newTaskQueue(0, newTestLogger())
	defer q.Close()

	ran := make(chan struct{})
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled after a panicking task")
	}
}

func TestQueueCloseIsIdempotentAndStopsWork(t *testing.T) {
	q := newTaskQueue(0, newTestLogger())
	q.Close()
	q.Close()

	// Enqueue after close must not run or block.
	q.Enqueue(func() { t.Error("task ran after Close") })
	time.Sleep(20 * time.Millisecond)
}

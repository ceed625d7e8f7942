package fetchpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"derp/pkg/catalog"
	"derp/pkg/logger"
)

func testCapture(i int) catalog.Capture {
	return catalog.Capture{
		ID:          int64(i + 1),
		OriginalURL: fmt.Sprintf("http://example.com/page%d", i),
		Timestamp:   "20070615120000",
		ArchiveURL:  fmt.Sprintf("https://web.archive.org/web/20070615120000/http://example.com/page%d", i),
	}
}

func collectResults(pool *Pool) (<-chan []Result, func()) {
	out := make(chan []Result, 1)
	done := func() {
		pool.Close()
	}
	go func() {
		var results []Result
		for result := range pool.Results() {
			results = append(results, result)
		}
		out <- results
	}()
	return out, done
}

func TestPoolProcessesAllJobs(t *testing.T) {
	var processed int32
	pool := New(3, func(ctx context.Context, capt catalog.Capture) error {
		atomic.AddInt32(&processed, 1)
		time.Sleep(5 * time.Millisecond)
		return nil
	}, logger.NewTestLogger())
	pool.Start(context.Background())

	out, done := collectResults(pool)

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		if err := pool.Submit(testCapture(i)); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}
	done()
	results := <-out

	if len(results) != numJobs {
		t.Fatalf("expected %d results, got %d", numJobs, len(results))
	}
	for _, result := range results {
		if result.Err != nil {
			t.Errorf("capture %d: unexpected error %v", result.Capture.ID, result.Err)
		}
		if result.Duration <= 0 {
			t.Errorf("capture %d: duration not recorded", result.Capture.ID)
		}
	}
	if got := atomic.LoadInt32(&processed); got != int32(numJobs) {
		t.Errorf("expected %d process calls, got %d", numJobs, got)
	}
}

func TestPoolReportsErrors(t *testing.T) {
	pool := New(2, func(ctx context.Context, capt catalog.Capture) error {
		if capt.ID%2 == 0 {
			return fmt.Errorf("fetch failed for capture %d", capt.ID)
		}
		return nil
	}, logger.NewTestLogger())
	pool.Start(context.Background())

	out, done := collectResults(pool)

	for i := 0; i < 6; i++ {
		if err := pool.Submit(testCapture(i)); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}
	done()
	results := <-out

	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed != 3 {
		t.Errorf("expected 3 failures, got %d", failed)
	}
}

func TestPoolRunsWorkersConcurrently(t *testing.T) {
	pool := New(5, func(ctx context.Context, capt catalog.Capture) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}, logger.NewTestLogger())
	pool.Start(context.Background())

	out, done := collectResults(pool)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := pool.Submit(testCapture(i)); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}
	done()
	results := <-out
	elapsed := time.Since(start)

	// 10 jobs at 100ms across 5 workers is two rounds, so well under
	// the 1s a serial run would take.
	if elapsed > 500*time.Millisecond {
		t.Errorf("jobs took too long: %v", elapsed)
	}
	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}
}

func TestPoolSubmitFailsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	var once sync.Once
	pool := New(1, func(ctx context.Context, capt catalog.Capture) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, logger.NewTestLogger())
	pool.Start(ctx)
	defer pool.Close()

	// First job occupies the single worker, the next two fill the
	// buffered queue.
	for i := 0; i < 3; i++ {
		if err := pool.Submit(testCapture(i)); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}

	<-started
	cancel()

	// Queue is full and the context is cancelled, so a further submit
	// must fail rather than block.
	if err := pool.Submit(testCapture(99)); err == nil {
		t.Fatal("expected Submit to fail after cancellation")
	}
}

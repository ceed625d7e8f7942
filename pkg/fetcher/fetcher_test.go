package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"testing"

	"derp/pkg/catalog"
	"derp/pkg/extract"
	"derp/pkg/logger"
	"derp/pkg/storage"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  int
}

func (f *fakeFetcher) Execute(ctx context.Context, rawURL, kind string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, fmt.Errorf("no canned body for %s", rawURL)
	}
	return body, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestFetcher(t *testing.T, fake *fakeFetcher) (*Fetcher, *catalog.Catalog, *storage.Manager) {
	t.Helper()
	cat := catalog.New(catalog.OpenMemory(t), "20040101000000", "20111231235959", logger.NewTestLogger())
	store, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	analyzer := extract.NewAnalyzer([]string{"cojum dip"}, logger.NewTestLogger())
	return New(cat, fake, store, analyzer, 2, logger.NewTestLogger()), cat, store
}

func insertCapture(t *testing.T, cat *catalog.Catalog, i int) catalog.Capture {
	t.Helper()
	capt := catalog.Capture{
		OriginalURL: fmt.Sprintf("http://example.com/page%d", i),
		Timestamp:   "20070615120000",
		ArchiveURL:  fmt.Sprintf("https://web.archive.org/web/20070615120000/http://example.com/page%d", i),
	}
	if _, err := cat.Insert(&capt, "cojum dip", "cdx"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	pending, err := cat.ListPending(0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	for _, p := range pending {
		if p.OriginalURL == capt.OriginalURL {
			return p
		}
	}
	t.Fatalf("inserted capture %s not pending", capt.OriginalURL)
	return catalog.Capture{}
}

func TestRunBatchFetchesAndAnalyzes(t *testing.T) {
	relevantBody := []byte(`<html><body><h1>Cojum Dip live</h1>` +
		`<a href="/downloads/show.mp3">download</a></body></html>`)
	boringBody := []byte(`<html><body><p>nothing to see here</p></body></html>`)

	fake := &fakeFetcher{bodies: map[string][]byte{}}
	f, cat, store := newTestFetcher(t, fake)

	band := insertCapture(t, cat, 1)
	boring := insertCapture(t, cat, 2)
	fake.bodies[band.ArchiveURL] = relevantBody
	fake.bodies[boring.ArchiveURL] = boringBody

	summary, err := f.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Processed != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Relevant != 1 {
		t.Errorf("expected 1 relevant capture, got %d", summary.Relevant)
	}

	got, err := cat.GetCapture(band.ID)
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if !got.Fetched || !got.Analyzed || !got.Relevant {
		t.Errorf("relevant capture not fully recorded: %+v", got)
	}
	sum := sha256.Sum256(relevantBody)
	wantHash := hex.EncodeToString(sum[:])
	if got.ContentHash != wantHash {
		t.Errorf("content hash = %s, want %s", got.ContentHash, wantHash)
	}
	if _, err := os.Stat(got.ContentPath); err != nil {
		t.Errorf("stored body missing: %v", err)
	}
	body, err := store.Load(wantHash)
	if err != nil || string(body) != string(relevantBody) {
		t.Errorf("stored body mismatch (err=%v)", err)
	}

	media, err := cat.ListMediaCandidates()
	if err != nil {
		t.Fatalf("ListMediaCandidates: %v", err)
	}
	if len(media) != 1 || media[0].Kind != "audio" {
		t.Errorf("media candidates = %+v, want one audio link", media)
	}

	gotBoring, err := cat.GetCapture(boring.ID)
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if !gotBoring.Fetched || gotBoring.Relevant {
		t.Errorf("irrelevant capture misrecorded: %+v", gotBoring)
	}

	pending, err := cat.ListPending(0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty pending list, got %d", len(pending))
	}
}

func TestRunBatchRecordsFailuresWithoutRequeue(t *testing.T) {
	fake := &fakeFetcher{
		bodies: map[string][]byte{},
		errs:   map[string]error{},
	}
	f, cat, _ := newTestFetcher(t, fake)

	good := insertCapture(t, cat, 1)
	bad := insertCapture(t, cat, 2)
	fake.bodies[good.ArchiveURL] = []byte("<html><body>ok</body></html>")
	fake.errs[bad.ArchiveURL] = fmt.Errorf("connection reset")

	summary, err := f.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	gotBad, err := cat.GetCapture(bad.ID)
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if gotBad.Fetched {
		t.Error("failed capture marked fetched")
	}
	if gotBad.FetchError == "" {
		t.Error("failed capture has no recorded error")
	}

	// Failed captures stay failed: a second batch finds nothing.
	calls := fake.callCount()
	summary, err = f.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("second batch processed %d captures, want 0", summary.Processed)
	}
	if fake.callCount() != calls {
		t.Error("second batch fetched something")
	}
}

func TestRunBatchHonorsLimit(t *testing.T) {
	fake := &fakeFetcher{bodies: map[string][]byte{}}
	f, cat, _ := newTestFetcher(t, fake)

	for i := 0; i < 3; i++ {
		capt := insertCapture(t, cat, i)
		fake.bodies[capt.ArchiveURL] = []byte("<html><body>ok</body></html>")
	}

	summary, err := f.RunBatch(context.Background(), 2)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("processed %d, want 2", summary.Processed)
	}

	pending, err := cat.ListPending(0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 capture left pending, got %d", len(pending))
	}
}

func TestRunBatchEmptyCatalog(t *testing.T) {
	f, _, _ := newTestFetcher(t, &fakeFetcher{})

	summary, err := f.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary != (BatchSummary{}) {
		t.Errorf("expected zero summary, got %+v", summary)
	}
}

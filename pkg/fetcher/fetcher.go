// Package fetcher downloads the page bodies of pending captures and
// runs content analysis over them.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	"derp/internal/fetchpool"
	"derp/pkg/catalog"
	"derp/pkg/extract"
	"derp/pkg/logger"
)

// PageFetcher retrieves one archived page body. Satisfied by the
// wayback client.
type PageFetcher interface {
	Execute(ctx context.Context, rawURL, kind string) ([]byte, error)
}

// BodyStore persists page bodies keyed by content hash. Satisfied by
// the storage manager.
type BodyStore interface {
	Save(hash string, body []byte) (string, error)
	Has(hash string) bool
}

// PageAnalyzer inspects a fetched body for phrases and media
type PageAnalyzer interface {
	Analyze(page []byte) extract.Analysis
}

// BatchSummary reports what one RunBatch call did
type BatchSummary struct {
	Processed int
	Succeeded int
	Failed    int
	Relevant  int
}

// Fetcher drains the catalog's pending captures through a worker pool.
// Failed captures keep their error in the catalog and are not retried
// in later batches.
type Fetcher struct {
	catalog  *catalog.Catalog
	client   PageFetcher
	store    BodyStore
	analyzer PageAnalyzer
	workers  int
	logger   logger.Logger
}

// New creates a fetcher running up to workers concurrent fetches
func New(cat *catalog.Catalog, client PageFetcher, store BodyStore, analyzer PageAnalyzer, workers int, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		catalog:  cat,
		client:   client,
		store:    store,
		analyzer: analyzer,
		workers:  workers,
		logger:   log,
	}
}

// RunBatch fetches up to limit pending captures (all of them when
// limit <= 0) and records the outcome of each in the catalog.
func (f *Fetcher) RunBatch(ctx context.Context, limit int) (BatchSummary, error) {
	pending, err := f.catalog.ListPending(limit)
	if err != nil {
		return BatchSummary{}, err
	}
	summary := BatchSummary{Processed: len(pending)}
	if len(pending) == 0 {
		f.logger.Info("no pending captures to fetch")
		return summary, nil
	}

	f.logger.InfoWithFields("starting fetch batch", map[string]interface{}{
		"pending": len(pending),
		"workers": f.workers,
	})

	// processCapture marks relevance in the catalog; the counter only
	// feeds the batch summary.
	var relevant int64
	pool := fetchpool.New(f.workers, func(ctx context.Context, capt catalog.Capture) error {
		wasRelevant, err := f.processCapture(ctx, capt)
		if wasRelevant {
			atomic.AddInt64(&relevant, 1)
		}
		return err
	}, f.logger)

	pool.Start(ctx)
	go func() {
		for _, capt := range pending {
			if err := pool.Submit(capt); err != nil {
				break
			}
		}
		pool.Close()
	}()

	for result := range pool.Results() {
		if result.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	summary.Relevant = int(atomic.LoadInt64(&relevant))

	f.logger.InfoWithFields("fetch batch finished", map[string]interface{}{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"relevant":  summary.Relevant,
	})
	return summary, ctx.Err()
}

// processCapture does the full lifecycle for one capture: fetch,
// store, analyze, record. Fetch failures are written to the catalog so
// the capture drops out of future pending lists.
func (f *Fetcher) processCapture(ctx context.Context, capt catalog.Capture) (bool, error) {
	body, err := f.client.Execute(ctx, capt.ArchiveURL, "fetch")
	if err != nil {
		if markErr := f.catalog.MarkFetchError(capt.ID, err.Error()); markErr != nil {
			f.logger.WithError(markErr).Error("failed to record fetch error")
		}
		return false, err
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	path, err := f.store.Save(hash, body)
	if err != nil {
		if markErr := f.catalog.MarkFetchError(capt.ID, err.Error()); markErr != nil {
			f.logger.WithError(markErr).Error("failed to record fetch error")
		}
		return false, err
	}
	if err := f.catalog.MarkFetched(capt.ID, hash, path); err != nil {
		return false, err
	}

	analysis := f.analyzer.Analyze(body)
	if len(analysis.Media) > 0 {
		candidates := make([]catalog.MediaCandidate, 0, len(analysis.Media))
		for _, m := range analysis.Media {
			candidates = append(candidates, catalog.MediaCandidate{
				CaptureID: capt.ID,
				URL:       m.URL,
				Kind:      m.Kind,
			})
		}
		if err := f.catalog.AddMediaCandidates(capt.ID, candidates); err != nil {
			return false, err
		}
	}
	if err := f.catalog.MarkAnalyzed(capt.ID, analysis.Relevant(), analysis.Summary()); err != nil {
		return false, err
	}

	f.logger.DebugWithFields("capture fetched", map[string]interface{}{
		"capture_id": capt.ID,
		"hash":       hash,
		"relevant":   analysis.Relevant(),
	})
	return analysis.Relevant(), nil
}

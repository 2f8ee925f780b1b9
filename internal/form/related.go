package form

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/worker"
)

// relatedData is the result of one related-data loading phase: record lists
// keyed by source name, plus a warning per source that failed to load.
type relatedData struct {
	records  map[string][]*entity.Record
	warnings map[string]string
}

func (d *relatedData) warningFor(source *RelatedSource) string {
	if d == nil {
		return ""
	}
	return d.warnings[source.name()]
}

func (d *relatedData) recordsFor(source *RelatedSource) []*entity.Record {
	if d == nil {
		return nil
	}
	return d.records[source.name()]
}

// loadRelated fetches every source's record list concurrently through the
// worker pool. A failing source is isolated: it is logged, recorded as a
// warning, and left with an empty list; the other sources still load.
func loadRelated(ctx context.Context, pool *worker.Pool, logger *zap.Logger, sources []*RelatedSource) *relatedData {
	data := &relatedData{
		records:  make(map[string][]*entity.Record, len(sources)),
		warnings: make(map[string]string),
	}
	if len(sources) == 0 {
		return data
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	fetch := func(ctx context.Context, source *RelatedSource) {
		defer wg.Done()
		records, err := source.Lister.List(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Warn("related source failed to load",
				zap.String("source", source.name()), zap.Error(err))
			data.warnings[source.name()] = "related options could not be loaded"
			data.records[source.name()] = nil
			return
		}
		data.records[source.name()] = records
	}

	for _, source := range sources {
		source := source
		wg.Add(1)
		if pool == nil {
			fetch(ctx, source)
			continue
		}
		if err := pool.Submit(ctx, func(ctx context.Context) { fetch(ctx, source) }); err != nil {
			// Pool closed; fall back to loading on the calling goroutine.
			fetch(ctx, source)
		}
	}
	wg.Wait()
	return data
}

package estimate

import (
	"context"
	"sync"

	"github.com/trafficlens/datalayer/internal/model"
)

// GetBatch resolves many estimate lookups with bounded concurrency. Requests
// are processed in fixed-size chunks: every lookup inside a chunk runs
// concurrently, and a chunk completes before the next begins, keeping peak
// outbound concurrency at the chunk size. Results preserve request order, and
// a failing lookup resolves to its own fallback record without disturbing
// its siblings.
func (c *Cache) GetBatch(ctx context.Context, reqs []model.EstimateRequest) []Record {
	out := make([]Record, len(reqs))

	for start := 0; start < len(reqs); start += c.chunk {
		end := min(start+c.chunk, len(reqs))

		var wg sync.WaitGroup
		wg.Add(end - start)
		for i := start; i < end; i++ {
			go func(i int) {
				defer wg.Done()
				r := reqs[i]
				out[i] = c.GetEstimate(ctx, r.Lat, r.Lon, r.DataPoints)
			}(i)
		}
		wg.Wait()
	}
	return out
}

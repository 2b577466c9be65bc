package estimate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trafficlens/datalayer/internal/model"
)

// concurrencyFetcher tracks peak in-flight upstream calls.
type concurrencyFetcher struct {
	mu       sync.Mutex
	calls    int
	inflight int64
	peak     int64
	fn       func(lat, lon float64, dataPoints int) (Record, error)
}

func (f *concurrencyFetcher) FetchEstimate(_ context.Context, lat, lon float64, dataPoints int) (Record, error) {
	cur := atomic.AddInt64(&f.inflight, 1)
	for {
		p := atomic.LoadInt64(&f.peak)
		if cur <= p || atomic.CompareAndSwapInt64(&f.peak, p, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt64(&f.inflight, -1)

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(lat, lon, dataPoints)
}

// spread requests across distinct buckets so nothing coalesces
func distinctRequests(n int) []model.EstimateRequest {
	reqs := make([]model.EstimateRequest, n)
	for i := range reqs {
		reqs[i] = model.EstimateRequest{Lat: 10 + float64(i)*0.01, Lon: 70, DataPoints: i + 1}
	}
	return reqs
}

func TestGetBatch_OrderPreserved(t *testing.T) {
	f := &concurrencyFetcher{fn: func(lat, _ float64, dp int) (Record, error) {
		return Record{
			Success:           true,
			EstimatedVehicles: dp * 10,
			Confidence:        ConfidenceMedium,
			OSMDataAvailable:  true,
		}, nil
	}}
	c := New(Config{ChunkSize: 5}, f, Options{})

	reqs := distinctRequests(12)
	got := c.GetBatch(context.Background(), reqs)

	if len(got) != len(reqs) {
		t.Fatalf("len = %d, want %d", len(got), len(reqs))
	}
	for i, r := range got {
		if want := (i + 1) * 10; r.EstimatedVehicles != want {
			t.Fatalf("result %d = %d, want %d (order not preserved)", i, r.EstimatedVehicles, want)
		}
	}
}

func TestGetBatch_ConcurrencyBoundedByChunk(t *testing.T) {
	f := &concurrencyFetcher{fn: func(_, _ float64, dp int) (Record, error) {
		return Record{Success: true, EstimatedVehicles: dp, OSMDataAvailable: true}, nil
	}}
	c := New(Config{ChunkSize: 5}, f, Options{})

	c.GetBatch(context.Background(), distinctRequests(12))

	if f.calls != 12 {
		t.Fatalf("upstream calls = %d, want 12", f.calls)
	}
	if peak := atomic.LoadInt64(&f.peak); peak > 5 {
		t.Fatalf("peak concurrency = %d, want <= 5", peak)
	}
}

func TestGetBatch_FailureIsolatedPerRequest(t *testing.T) {
	f := &concurrencyFetcher{fn: func(lat, _ float64, dp int) (Record, error) {
		if dp == 3 {
			return Record{}, errors.New("boom")
		}
		return Record{Success: true, EstimatedVehicles: dp * 10, OSMDataAvailable: true}, nil
	}}
	c := New(Config{ChunkSize: 5, FallbackMultiplier: 15}, f, Options{})

	got := c.GetBatch(context.Background(), distinctRequests(7))

	for i, r := range got {
		if i == 2 {
			if r.Method != MethodFallback || r.EstimatedVehicles != 45 {
				t.Fatalf("failed request did not fall back: %+v", r)
			}
			continue
		}
		if !r.Success {
			t.Fatalf("sibling request %d aborted: %+v", i, r)
		}
	}
}

func TestGetBatch_Empty(t *testing.T) {
	c := New(Config{}, &concurrencyFetcher{fn: func(_, _ float64, _ int) (Record, error) {
		return Record{}, fmt.Errorf("must not be called")
	}}, Options{})

	if got := c.GetBatch(context.Background(), nil); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

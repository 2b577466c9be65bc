package estimate

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/trafficlens/datalayer/internal/cache/redisstore"
)

func newSharedTier(t *testing.T) *redisstore.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestSharedTier_SurvivesCacheInstances(t *testing.T) {
	shared := newSharedTier(t)

	f1 := &fakeFetcher{fn: goodResponse(150)}
	c1 := New(Config{}, f1, Options{Shared: shared})
	c1.GetEstimate(context.Background(), 12.9716, 77.5946, 10)
	if f1.callCount() != 1 {
		t.Fatalf("seed calls = %d, want 1", f1.callCount())
	}

	// a fresh instance with an empty memory tier resolves from the shared tier
	f2 := &fakeFetcher{fn: goodResponse(999)}
	c2 := New(Config{}, f2, Options{Shared: shared})
	rec := c2.GetEstimate(context.Background(), 12.9716, 77.5946, 40)
	if f2.callCount() != 0 {
		t.Fatalf("upstream called despite shared hit: %d", f2.callCount())
	}
	if rec.EstimatedVehicles != 600 {
		t.Fatalf("replay from shared tier = %d, want 600", rec.EstimatedVehicles)
	}

	// shared hit also repopulates the memory tier
	if s := c2.CacheStats(); s.Active != 1 {
		t.Fatalf("memory tier not repopulated: %+v", s)
	}
}

func TestSharedTier_InvalidateRemovesBothTiers(t *testing.T) {
	shared := newSharedTier(t)

	f := &fakeFetcher{fn: goodResponse(150)}
	c := New(Config{}, f, Options{Shared: shared})
	c.GetEstimate(context.Background(), 12.9716, 77.5946, 10)

	c.Invalidate(context.Background(), "est:12.972:77.595")

	c.GetEstimate(context.Background(), 12.9716, 77.5946, 10)
	if f.callCount() != 2 {
		t.Fatalf("upstream calls = %d, want 2 after invalidation", f.callCount())
	}
}

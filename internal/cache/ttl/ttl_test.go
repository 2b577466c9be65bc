package ttl

import (
	"testing"
	"time"
)

// fake clock advanced by hand
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(maxEntries int) (*Cache[string, string], *clock) {
	cl := &clock{t: time.Unix(1700000000, 0)}
	c := New[string, string](maxEntries)
	c.now = cl.now
	return c, cl
}

func TestGet_ReturnsValueWithinTTL(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("k", "v", time.Second)

	cl.advance(500 * time.Millisecond)
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = (%q, %v), want (v, true)", got, ok)
	}
}

func TestGet_ExpiredEntryIsAbsentAndRemoved(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("k", "v", time.Second)

	cl.advance(1500 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
	// lazy expiry physically removed the entry
	if s := c.Stats(); s.Total != 0 {
		t.Fatalf("Total = %d after expired Get, want 0", s.Total)
	}
}

func TestGet_BoundaryExactlyAtTTLIsStillValid(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("k", "v", time.Second)

	cl.advance(time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry at exactly ttl must still be valid")
	}
}

func TestHasDeleteClear(t *testing.T) {
	c, _ := newTestCache(0)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	if !c.Has("a") {
		t.Fatal("Has(a) = false")
	}
	c.Delete("a")
	if c.Has("a") {
		t.Fatal("Has(a) = true after Delete")
	}
	c.Clear()
	if s := c.Stats(); s.Total != 0 {
		t.Fatalf("Total = %d after Clear, want 0", s.Total)
	}
}

func TestCleanup_RemovesOnlyExpired(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("short", "1", time.Second)
	c.Set("long", "2", time.Hour)

	cl.advance(2 * time.Second)
	if removed := c.Cleanup(); removed != 1 {
		t.Fatalf("Cleanup removed %d, want 1", removed)
	}
	if !c.Has("long") {
		t.Fatal("unexpired entry removed by Cleanup")
	}
}

func TestStats_IsPureRead(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("short", "1", time.Second)
	c.Set("long", "2", time.Hour)

	cl.advance(2 * time.Second)
	s := c.Stats()
	if s.Total != 2 || s.Active != 1 || s.Expired != 1 {
		t.Fatalf("Stats = %+v, want total=2 active=1 expired=1", s)
	}
	// stats must not evict
	if s2 := c.Stats(); s2.Total != 2 {
		t.Fatalf("Stats evicted entries: %+v", s2)
	}
}

func TestSet_AtCapacitySweepsExpiredFirst(t *testing.T) {
	c, cl := newTestCache(2)
	c.Set("old1", "1", time.Second)
	c.Set("old2", "2", time.Second)

	cl.advance(2 * time.Second)
	c.Set("new", "3", time.Minute)

	s := c.Stats()
	if s.Total != 1 || !c.Has("new") {
		t.Fatalf("expected only the new entry to survive, stats=%+v", s)
	}
}

func TestSet_AtCapacityDoesNotEvictLiveEntries(t *testing.T) {
	c, _ := newTestCache(2)
	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)
	c.Set("c", "3", time.Hour)

	// bound is best effort: live entries stay
	for _, k := range []string{"a", "b", "c"} {
		if !c.Has(k) {
			t.Fatalf("live entry %q was evicted", k)
		}
	}
}

func TestSet_OverwriteRefreshesStoredAt(t *testing.T) {
	c, cl := newTestCache(0)
	c.Set("k", "v1", time.Second)

	cl.advance(900 * time.Millisecond)
	c.Set("k", "v2", time.Second)

	cl.advance(900 * time.Millisecond)
	got, ok := c.Get("k")
	if !ok || got != "v2" {
		t.Fatalf("Get = (%q, %v), want (v2, true)", got, ok)
	}
}

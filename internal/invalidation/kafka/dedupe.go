package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// versionDedupe remembers the highest event version applied per bucket key so
// replayed or reordered feed messages cannot undo a newer invalidation. The
// window is bounded; keys evicted from it are simply re-applied, which is
// safe because invalidation is idempotent.
type versionDedupe struct {
	mu   sync.Mutex
	seen *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{seen: c}
}

func (d *versionDedupe) shouldApply(key string, version uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.seen.Get(key); ok && version <= prev {
		return false
	}
	d.seen.Add(key, version)
	return true
}

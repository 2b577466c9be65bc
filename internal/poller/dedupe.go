package poller

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/trafficlens/datalayer/internal/model"
)

// announcer remembers recently seen cluster IDs so a chokepoint is announced
// once when it appears, not on every poll. Bounded by an LRU so long-running
// sessions do not grow without limit.
type announcer struct {
	lru *lru.Cache[string, struct{}]
}

func newAnnouncer(size int) *announcer {
	if size <= 0 {
		size = 512
	}
	c, _ := lru.New[string, struct{}](size)
	return &announcer{lru: c}
}

// returns the clusters not seen before, marking all as seen
func (a *announcer) newlySeen(clusters []model.LiveCluster) []model.LiveCluster {
	var fresh []model.LiveCluster
	for _, c := range clusters {
		if c.ID == "" {
			continue
		}
		if _, ok := a.lru.Get(c.ID); !ok {
			fresh = append(fresh, c)
		}
		a.lru.Add(c.ID, struct{}{})
	}
	return fresh
}

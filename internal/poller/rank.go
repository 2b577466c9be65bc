package poller

import (
	"sort"

	"github.com/trafficlens/datalayer/internal/model"
)

// RankByScore returns a copy of clusters sorted by score descending. The
// sort is stable so ties keep their upstream order, which downstream
// consumers rely on for deterministic rendering.
func RankByScore(clusters []model.LiveCluster) []model.LiveCluster {
	out := append([]model.LiveCluster(nil), clusters...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// TopN ranks clusters and keeps the first n.
func TopN(clusters []model.LiveCluster, n int) []model.LiveCluster {
	ranked := RankByScore(clusters)
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

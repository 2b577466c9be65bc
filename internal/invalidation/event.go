// Package invalidation defines road-network change events that evict
// capacity-estimate buckets before their TTL runs out.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/trafficlens/datalayer/internal/cache/keys"
	"github.com/trafficlens/datalayer/internal/model"
)

// Event invalidates estimate buckets either by explicit bucket keys or by a
// bounding box of the changed region. Version orders events per key so a
// replayed or reordered feed cannot resurrect an older invalidation.
type Event struct {
	Version uint64    `json:"version"`
	Op      string    `json:"op"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`

	Buckets []string   `json:"buckets,omitempty"`
	BBox    *EventBBox `json:"bbox,omitempty"`
}

type EventBBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

func (e Event) Validate() error {
	switch e.Op {
	case "road_change", "closure", "manual":
	default:
		return fmt.Errorf("op must be road_change|closure|manual")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasBuckets := len(e.Buckets) > 0
	hasBBox := e.BBox != nil
	if hasBuckets == hasBBox {
		return fmt.Errorf("exactly one of buckets or bbox is required")
	}
	if hasBuckets {
		for _, b := range e.Buckets {
			if strings.TrimSpace(b) == "" {
				return fmt.Errorf("empty bucket key")
			}
		}
		return nil
	}
	bb := *e.BBox
	if !(bb.MinLon >= -180 && bb.MinLon <= 180 && bb.MaxLon >= -180 && bb.MaxLon <= 180) {
		return fmt.Errorf("bbox longitude out of range")
	}
	if !(bb.MinLat >= -90 && bb.MinLat <= 90 && bb.MaxLat >= -90 && bb.MaxLat <= 90) {
		return fmt.Errorf("bbox latitude out of range")
	}
	if !(bb.MaxLat > bb.MinLat && bb.MaxLon > bb.MinLon) {
		return fmt.Errorf("bbox must satisfy max>min on both axes")
	}
	return nil
}

// BucketKeys resolves the event to the concrete cache keys it covers.
func (e Event) BucketKeys(precision int) []string {
	if len(e.Buckets) > 0 {
		return e.Buckets
	}
	if e.BBox == nil {
		return nil
	}
	b := model.BBox{
		MinLat: e.BBox.MinLat,
		MinLon: e.BBox.MinLon,
		MaxLat: e.BBox.MaxLat,
		MaxLon: e.BBox.MaxLon,
	}
	return keys.BucketsForBBox(b, precision)
}

// Package keys derives cache keys from geographic coordinates.
//
// A bucket key quantizes a coordinate pair by rounding each component to a
// fixed number of decimal places. Coordinates that round to the same pair
// share one key; the default precision of 3 decimals groups points within
// roughly 100 m. This is a cache-sharing mechanism, not an identifier.
package keys

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/trafficlens/datalayer/internal/model"
)

// DefaultPrecision is the decimal precision used when a caller passes a
// non-positive value.
const DefaultPrecision = 3

// Bucket returns the quantized cache key for a coordinate pair.
func Bucket(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return fmt.Sprintf("est:%s:%s", quantize(lat, precision), quantize(lon, precision))
}

func quantize(v float64, precision int) string {
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		r = 0 // normalize -0
	}
	return fmt.Sprintf("%.*f", precision, r)
}

// BucketsForBBox enumerates every bucket key whose grid cell lies within the
// bounding box at the given precision. Used by invalidation to translate a
// changed region into concrete cache keys.
func BucketsForBBox(b model.BBox, precision int) []string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	scale := math.Pow10(precision)
	step := 1 / scale

	minLat := math.Floor(b.MinLat*scale) / scale
	minLon := math.Floor(b.MinLon*scale) / scale

	var out []string
	for lat := minLat; lat <= b.MaxLat+step/2; lat += step {
		for lon := minLon; lon <= b.MaxLon+step/2; lon += step {
			out = append(out, Bucket(lat, lon, precision))
		}
	}
	return out
}

// Fingerprint hashes a cluster query into a short stable identifier, used to
// tag a polling session in logs.
func Fingerprint(q model.ClusterQuery) string {
	bbox := ""
	if q.BBox != nil {
		bbox = q.BBox.String()
	}
	s := fmt.Sprintf("z=%d:eps=%.1f:min=%d:sev=%.3f:bbox=%s:geo=%t",
		q.Zoom, q.EpsMeters, q.MinSamples, q.MinSeverity, bbox, q.Geocode)
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

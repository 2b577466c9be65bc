// Package model defines core domain types shared across the data layer.
package model

import "fmt"

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// String representation matching the upstream bbox query format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

func (b BBox) Contains(p LatLon) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// LiveCluster is one ranked traffic chokepoint as reported by the upstream
// clustering service. The poller replaces the whole slice on every successful
// fetch; individual clusters are never mutated in place.
type LiveCluster struct {
	ID            string  `json:"id"`
	Center        LatLon  `json:"center"`
	Score         float64 `json:"score"`
	SeverityMean  float64 `json:"severity_mean"`
	SeverityPeak  float64 `json:"severity_peak"`
	IncidentCount int     `json:"incident_count"`
	Closure       bool    `json:"closure"`
	Support       float64 `json:"support"`
	Count         int     `json:"count"`
	RoadName      string  `json:"road_name,omitempty"`
}

// ClusterQuery holds the live-clusters endpoint parameters. A query is the
// unit of poller configuration: changing any field starts a new session.
type ClusterQuery struct {
	Zoom        int
	EpsMeters   float64
	MinSamples  int
	MinSeverity float64
	BBox        *BBox
	Geocode     bool
}

// EstimateRequest is one capacity-estimate lookup.
type EstimateRequest struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DataPoints int     `json:"data_points"`
}

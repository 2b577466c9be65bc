package estimate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trafficlens/datalayer/internal/observability"
)

// HTTPFetcher calls the capacity-estimate endpoint.
type HTTPFetcher struct {
	url  string
	http *http.Client
}

func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{url: url, http: client}
}

type estimateRequest struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DataPoints int     `json:"dataPoints"`
}

type estimateResponse struct {
	Success            bool               `json:"success"`
	EstimationMethod   string             `json:"estimation_method"`
	EstimatedVehicles  float64            `json:"estimated_vehicles"`
	Confidence         string             `json:"confidence"`
	RoadContext        *RoadContext       `json:"road_context"`
	CalculationFactors map[string]float64 `json:"calculation_factors"`
	OSMDataAvailable   bool               `json:"osm_data_available"`
	Error              string             `json:"error"`
}

func (f *HTTPFetcher) FetchEstimate(ctx context.Context, lat, lon float64, dataPoints int) (Record, error) {
	body, err := json.Marshal(estimateRequest{Lat: lat, Lon: lon, DataPoints: dataPoints})
	if err != nil {
		return Record{}, fmt.Errorf("marshal estimate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return Record{}, fmt.Errorf("build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.http.Do(req)
	observability.ObserveUpstreamLatency("estimate", time.Since(start).Seconds())
	if err != nil {
		return Record{}, fmt.Errorf("estimate fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Record{}, fmt.Errorf("estimate status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var er estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return Record{}, fmt.Errorf("decode estimate response: %w", err)
	}

	return Record{
		Success:            er.Success,
		Method:             er.EstimationMethod,
		EstimatedVehicles:  int(er.EstimatedVehicles),
		Confidence:         parseConfidence(er.Confidence),
		RoadContext:        er.RoadContext,
		CalculationFactors: er.CalculationFactors,
		OSMDataAvailable:   er.OSMDataAvailable,
	}, nil
}

func parseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

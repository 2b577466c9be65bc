package estimate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcher_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req estimateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Lat != 12.9716 || req.DataPoints != 10 {
			t.Errorf("unexpected request payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":            true,
			"estimation_method":  "osm_heuristic",
			"estimated_vehicles": 150.0,
			"confidence":         "high",
			"osm_data_available": true,
			"road_context":       map[string]any{"road_type": "primary", "lane_count": 2},
		})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client())
	rec, err := f.FetchEstimate(context.Background(), 12.9716, 77.5946, 10)
	if err != nil {
		t.Fatalf("FetchEstimate: %v", err)
	}
	if !rec.Success || rec.EstimatedVehicles != 150 || rec.Confidence != ConfidenceHigh {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.RoadContext == nil || rec.RoadContext.RoadType != "primary" {
		t.Fatalf("road context dropped: %+v", rec.RoadContext)
	}
}

func TestHTTPFetcher_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client())
	if _, err := f.FetchEstimate(context.Background(), 1, 2, 3); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestHTTPFetcher_UnknownConfidenceDefaultsLow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "confidence": "whatever"})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client())
	rec, err := f.FetchEstimate(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("FetchEstimate: %v", err)
	}
	if rec.Confidence != ConfidenceLow {
		t.Fatalf("Confidence = %q, want low", rec.Confidence)
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trafficlens/datalayer/internal/estimate"
	"github.com/trafficlens/datalayer/internal/model"
	"github.com/trafficlens/datalayer/internal/poller"
)

const maxBatchRequests = 200

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseCoord(q string, min, max float64) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
	if err != nil || f < min || f > max {
		return 0, false
	}
	return f, true
}

func (a *API) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, ok := parseCoord(q.Get("lat"), -90, 90)
	if !ok {
		writeError(w, http.StatusBadRequest, "lat must be a number in [-90,90]")
		return
	}
	lon, ok := parseCoord(q.Get("lon"), -180, 180)
	if !ok {
		writeError(w, http.StatusBadRequest, "lon must be a number in [-180,180]")
		return
	}
	points := 0
	if raw := q.Get("points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "points must be a non-negative integer")
			return
		}
		points = n
	}

	rec := a.estimates.GetEstimate(r.Context(), lat, lon, points)
	writeJSON(w, http.StatusOK, rec)
}

type batchRequest struct {
	Requests []model.EstimateRequest `json:"requests"`
}

type batchResponse struct {
	Estimates []estimate.Record `json:"estimates"`
}

func (a *API) handleEstimateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Requests) > maxBatchRequests {
		writeError(w, http.StatusBadRequest, "too many requests in one batch")
		return
	}
	for i, er := range req.Requests {
		if er.Lat < -90 || er.Lat > 90 || er.Lon < -180 || er.Lon > 180 || er.DataPoints < 0 {
			writeError(w, http.StatusBadRequest, "invalid request at index "+strconv.Itoa(i))
			return
		}
	}

	recs := a.estimates.GetBatch(r.Context(), req.Requests)
	writeJSON(w, http.StatusOK, batchResponse{Estimates: recs})
}

// rankedChokepoint pairs a live cluster with its capacity estimate; the
// estimate slot is nil until batch enrichment fills it.
type rankedChokepoint struct {
	model.LiveCluster
	Estimate *estimate.Record `json:"estimate,omitempty"`
}

type chokepointsResponse struct {
	Chokepoints []rankedChokepoint `json:"chokepoints"`
	Loading     bool               `json:"loading"`
	Error       string             `json:"error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Total       int                `json:"total"`
}

func (a *API) handleChokepoints(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	state := a.live.Snapshot()
	top := poller.TopN(state.Data, limit)

	out := make([]rankedChokepoint, len(top))
	reqs := make([]model.EstimateRequest, len(top))
	for i, c := range top {
		out[i] = rankedChokepoint{LiveCluster: c}
		reqs[i] = model.EstimateRequest{
			Lat:        c.Center.Lat,
			Lon:        c.Center.Lon,
			DataPoints: c.Count,
		}
	}
	if len(reqs) > 0 {
		recs := a.estimates.GetBatch(r.Context(), reqs)
		for i := range out {
			rec := recs[i]
			out[i].Estimate = &rec
		}
	}

	writeJSON(w, http.StatusOK, chokepointsResponse{
		Chokepoints: out,
		Loading:     state.Loading,
		Error:       state.Err,
		UpdatedAt:   state.UpdatedAt,
		Total:       len(state.Data),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	a.live.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.estimates.CacheStats())
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	a.estimates.ClearCache()
	a.log.Info("estimate cache cleared", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

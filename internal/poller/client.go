package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trafficlens/datalayer/internal/model"
	"github.com/trafficlens/datalayer/internal/observability"
)

// ClustersClient calls the live-clusters endpoint.
type ClustersClient struct {
	url  string
	http *http.Client
}

func NewClustersClient(endpoint string, client *http.Client) *ClustersClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &ClustersClient{url: endpoint, http: client}
}

type clustersResponse struct {
	Clusters []model.LiveCluster `json:"clusters"`
}

func (c *ClustersClient) FetchClusters(ctx context.Context, q model.ClusterQuery) ([]model.LiveCluster, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse clusters url: %w", err)
	}

	params := url.Values{}
	params.Set("zoom", strconv.Itoa(q.Zoom))
	params.Set("eps_meters", strconv.FormatFloat(q.EpsMeters, 'f', -1, 64))
	params.Set("min_samples", strconv.Itoa(q.MinSamples))
	params.Set("min_severity", strconv.FormatFloat(q.MinSeverity, 'f', -1, 64))
	params.Set("geocode", strconv.FormatBool(q.Geocode))
	if q.BBox != nil {
		params.Set("bbox", q.BBox.String())
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build clusters request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("clusters_http", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("clusters fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("clusters status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cr clustersResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode clusters response: %w", err)
	}
	// a payload without the clusters field is served as an empty list, not
	// an error; the dashboard shows "no chokepoints" rather than breaking
	if cr.Clusters == nil {
		return []model.LiveCluster{}, nil
	}
	return cr.Clusters, nil
}

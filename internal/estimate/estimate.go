// Package estimate caches road capacity estimates keyed on quantized
// geography. Repeat lookups in the same bucket replay a stored per-location
// multiplier instead of calling upstream, concurrent lookups for one bucket
// collapse into a single upstream call, and transport failures degrade to a
// synthesized low-confidence record that is never cached.
package estimate

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trafficlens/datalayer/internal/cache/keys"
	"github.com/trafficlens/datalayer/internal/cache/ttl"
	"github.com/trafficlens/datalayer/internal/observability"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// MethodFallback marks a locally synthesized record substituted on upstream
// failure. Callers can tell it from real data via OSMDataAvailable.
const MethodFallback = "simple_fallback"

type RoadContext struct {
	RoadType      string `json:"road_type,omitempty"`
	LaneCount     int    `json:"lane_count,omitempty"`
	SpeedLimitKmh int    `json:"speed_limit_kmh,omitempty"`
	OneWay        bool   `json:"one_way,omitempty"`
}

// Record is one capacity estimate. BaseMultiplier is estimated vehicles per
// data point at fetch time; it lets a later lookup in the same bucket with a
// different data point count be answered from cache.
type Record struct {
	Success            bool               `json:"success"`
	Method             string             `json:"estimation_method"`
	EstimatedVehicles  int                `json:"estimated_vehicles"`
	Confidence         Confidence         `json:"confidence"`
	RoadContext        *RoadContext       `json:"road_context,omitempty"`
	CalculationFactors map[string]float64 `json:"calculation_factors,omitempty"`
	OSMDataAvailable   bool               `json:"osm_data_available"`
	BaseMultiplier     float64            `json:"base_multiplier"`
}

// Fetcher is the injected upstream capability.
type Fetcher interface {
	FetchEstimate(ctx context.Context, lat, lon float64, dataPoints int) (Record, error)
}

// SharedStore is an optional second cache tier (Redis in production).
// Failures are degraded to misses by the caller.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Config struct {
	Precision          int
	TTL                time.Duration
	MaxEntries         int
	ChunkSize          int
	FallbackMultiplier float64
	OpTimeout          time.Duration
}

type Options struct {
	Logger *slog.Logger
	Shared SharedStore
}

type Cache struct {
	log          *slog.Logger
	fetch        Fetcher
	store        *ttl.Cache[string, Record]
	shared       SharedStore
	sf           singleflight.Group
	precision    int
	ttl          time.Duration
	chunk        int
	fallbackMult float64
	opTimeout    time.Duration
}

func New(cfg Config, fetch Fetcher, opts Options) *Cache {
	if cfg.Precision <= 0 {
		cfg.Precision = keys.DefaultPrecision
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.FallbackMultiplier <= 0 {
		cfg.FallbackMultiplier = 15
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		log:          opts.Logger,
		fetch:        fetch,
		store:        ttl.New[string, Record](cfg.MaxEntries),
		shared:       opts.Shared,
		precision:    cfg.Precision,
		ttl:          cfg.TTL,
		chunk:        cfg.ChunkSize,
		fallbackMult: cfg.FallbackMultiplier,
		opTimeout:    cfg.OpTimeout,
	}
}

// GetEstimate returns the capacity estimate for a coordinate pair. It never
// returns an error: upstream failures yield a fallback record instead.
func (c *Cache) GetEstimate(ctx context.Context, lat, lon float64, dataPoints int) Record {
	key := keys.Bucket(lat, lon, c.precision)

	c.store.Cleanup()

	if rec, ok := c.store.Get(key); ok {
		observability.IncEstimateResult("hit")
		return replay(rec, dataPoints)
	}

	if rec, ok := c.sharedGet(ctx, key); ok {
		observability.IncEstimateResult("shared_hit")
		return replay(rec, dataPoints)
	}

	v, err, joined := c.sf.Do(key, func() (any, error) {
		rec, err := c.fetch.FetchEstimate(ctx, lat, lon, dataPoints)
		if err != nil {
			return Record{}, err
		}
		// Only a successful response backed by real source data is worth
		// keeping; anything else must retry the network next time.
		if rec.Success && rec.OSMDataAvailable && dataPoints > 0 {
			rec.BaseMultiplier = float64(rec.EstimatedVehicles) / float64(dataPoints)
			c.store.Set(key, rec, c.ttl)
			c.sharedSet(ctx, key, rec)
		}
		return rec, nil
	})
	if joined {
		observability.IncEstimateResult("coalesced")
	}
	if err != nil {
		observability.IncEstimateResult("fallback")
		c.log.Warn("estimate fetch failed, serving fallback",
			"bucket", key, "data_points", dataPoints, "err", err)
		return c.fallback(dataPoints)
	}
	observability.IncEstimateResult("miss")
	return v.(Record)
}

// Invalidate removes bucket keys from both tiers.
func (c *Cache) Invalidate(ctx context.Context, bucketKeys ...string) {
	for _, k := range bucketKeys {
		c.store.Delete(k)
	}
	if c.shared == nil || len(bucketKeys) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.shared.Del(opCtx, bucketKeys...); err != nil {
		c.log.Warn("shared tier delete failed", "keys", len(bucketKeys), "err", err)
	}
}

// ClearCache drops every in-memory entry. The shared tier is left to its own
// TTLs; use Invalidate for targeted shared deletes.
func (c *Cache) ClearCache() {
	c.store.Clear()
}

func (c *Cache) CacheStats() ttl.Stats {
	return c.store.Stats()
}

// envelope stored in the shared tier; StoredAt bounds the memory re-populate TTL
type sharedEnvelope struct {
	Record   Record    `json:"record"`
	StoredAt time.Time `json:"stored_at"`
}

func (c *Cache) sharedGet(ctx context.Context, key string) (Record, bool) {
	if c.shared == nil {
		return Record{}, false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	b, ok, err := c.shared.Get(opCtx, key)
	if err != nil {
		c.log.Warn("shared tier get failed, treating as miss", "bucket", key, "err", err)
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	var env sharedEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.log.Warn("shared tier entry corrupt, treating as miss", "bucket", key, "err", err)
		return Record{}, false
	}
	remaining := c.ttl - time.Since(env.StoredAt)
	if remaining <= 0 {
		return Record{}, false
	}
	c.store.Set(key, env.Record, remaining)
	return env.Record, true
}

func (c *Cache) sharedSet(ctx context.Context, key string, rec Record) {
	if c.shared == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	b, err := json.Marshal(sharedEnvelope{Record: rec, StoredAt: time.Now()})
	if err != nil {
		return
	}
	if err := c.shared.Set(opCtx, key, b, c.ttl); err != nil {
		c.log.Warn("shared tier set failed", "bucket", key, "err", err)
	}
}

// replay recomputes the vehicle estimate for a new data point count from the
// cached multiplier. Everything else is served unchanged.
func replay(rec Record, dataPoints int) Record {
	rec.EstimatedVehicles = int(math.Round(rec.BaseMultiplier * float64(dataPoints)))
	return rec
}

func (c *Cache) fallback(dataPoints int) Record {
	return Record{
		Success:           false,
		Method:            MethodFallback,
		EstimatedVehicles: int(math.Round(float64(dataPoints) * c.fallbackMult)),
		Confidence:        ConfidenceLow,
		OSMDataAvailable:  false,
	}
}

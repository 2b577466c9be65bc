package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trafficlens/datalayer/internal/model"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	EstimateURL string
	ClustersURL string

	// empty RedisAddr disables the shared estimate tier
	RedisAddr      string
	CacheOpTimeout time.Duration

	BucketPrecision    int
	EstimateTTL        time.Duration
	EstimateMaxEntries int
	BatchChunk         int
	FallbackMultiplier float64

	PollInterval time.Duration
	FetchTimeout time.Duration

	ClusterQuery model.ClusterQuery

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	precision := getint("BUCKET_PRECISION", 3)
	if precision < 0 {
		precision = 0
	}
	if precision > 8 {
		precision = 8
	}

	chunk := getint("BATCH_CHUNK", 5)
	if chunk < 1 {
		chunk = 1
	}

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		EstimateURL: getenv("ESTIMATE_URL", "http://localhost:8000/api/estimate-capacity"),
		ClustersURL: getenv("CLUSTERS_URL", "http://localhost:8000/api/live-clusters"),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		BucketPrecision:    precision,
		EstimateTTL:        getduration("ESTIMATE_TTL", 5*time.Minute),
		EstimateMaxEntries: getint("ESTIMATE_MAX_ENTRIES", 1000),
		BatchChunk:         chunk,
		FallbackMultiplier: getfloat("FALLBACK_MULTIPLIER", 15),

		PollInterval: getduration("POLL_INTERVAL", 60*time.Second),
		FetchTimeout: getduration("FETCH_TIMEOUT", 90*time.Second),

		ClusterQuery: model.ClusterQuery{
			Zoom:        getint("CLUSTER_ZOOM", 12),
			EpsMeters:   getfloat("CLUSTER_EPS_METERS", 250),
			MinSamples:  getint("CLUSTER_MIN_SAMPLES", 4),
			MinSeverity: getfloat("CLUSTER_MIN_SEVERITY", 0.5),
			BBox:        parseBBox(getenv("CLUSTER_BBOX", "")),
			Geocode:     getbool("CLUSTER_GEOCODE", true),
		},

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "road-network-changes"),
			GroupID: getenv("KAFKA_GROUP_ID", "estimate-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "minLat,minLon,maxLat,maxLon" into a bbox; nil when unset or invalid
func parseBBox(s string) *model.BBox {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		vals[i] = f
	}
	b := model.BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MaxLat <= b.MinLat || b.MaxLon <= b.MinLon {
		return nil
	}
	return &b
}

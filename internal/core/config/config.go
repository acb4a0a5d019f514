package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	RedisAddr   string
	PostgresDSN string

	PlacesTable      string
	ReviewTables     []string
	ReviewJoinFields []string
	RowLimit         int

	CacheDuration  time.Duration
	CacheOpTimeout time.Duration

	BoundsRatePerSec float64
	BoundsBurst      int

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		PostgresDSN: getenv("POSTGRES_DSN", ""),

		PlacesTable:      getenv("PLACES_TABLE", "places"),
		ReviewTables:     getlist("REVIEW_TABLES", "place_reviews,reviews"),
		ReviewJoinFields: getlist("REVIEW_JOIN_FIELDS", "place_id,placeId,place,placeUuid"),
		RowLimit:         getint("ROW_LIMIT", 1000),

		CacheDuration:  getduration("CACHE_DURATION", 60*time.Minute),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		BoundsRatePerSec: getfloat("BOUNDS_RATE_PER_SEC", 5),
		BoundsBurst:      getint("BOUNDS_BURST", 10),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "place-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "placecache-invalidator"),
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

// parse "a,b,c" into a trimmed list, dropping empties
func getlist(k, def string) []string {
	raw := getenv(k, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Package cache is a Redis-backed cache for analysis results. Only
// redacted results and span metadata are stored; the cache key is a hash,
// so the raw prompt text never reaches Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

// Config contains cache configuration.
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Stats tracks cache performance.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// ResultCache caches analysis results keyed by a request fingerprint.
// Hit and miss counters are updated atomically; Get runs concurrently.
type ResultCache struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a Redis-backed result cache and verifies the
// connection.
func NewResultCache(config *Config, log *logger.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := &ResultCache{
		client: redis.NewClient(opts),
		config: config,
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cache.client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Result cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL),
	)

	return cache, nil
}

// Get returns a cached result for the request, if present.
func (rc *ResultCache) Get(ctx context.Context, req pii.AnalyzeRequest) (*pii.AnalyzeResult, bool) {
	key := rc.requestKey(req)

	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		rc.misses.Add(1)
		return nil, false
	}
	if err != nil {
		rc.logger.Warn("cache lookup failed", zap.Error(err))
		rc.misses.Add(1)
		return nil, false
	}

	var result pii.AnalyzeResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		rc.logger.Warn("corrupted cache entry dropped", zap.String("key", key), zap.Error(err))
		rc.client.Del(ctx, key)
		rc.misses.Add(1)
		return nil, false
	}

	rc.hits.Add(1)
	rc.logger.Debug("cache hit", zap.String("key", key))
	return &result, true
}

// Set stores an analysis result under the request fingerprint. Incomplete
// results are not cached; a degraded answer should not outlive the outage
// that caused it.
func (rc *ResultCache) Set(ctx context.Context, req pii.AnalyzeRequest, result *pii.AnalyzeResult) error {
	if !result.Stats.DetectionComplete {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	key := rc.requestKey(req)
	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Warn("failed to cache result", zap.Error(err))
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

// GetStats returns cache performance statistics.
func (rc *ResultCache) GetStats() Stats {
	stats := Stats{Hits: rc.hits.Load(), Misses: rc.misses.Load()}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Close closes the Redis connection.
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// requestKey fingerprints the full request: text, requested types, and
// threshold all affect the result, so all of them feed the hash.
func (rc *ResultCache) requestKey(req pii.AnalyzeRequest) string {
	hasher := sha256.New()
	hasher.Write([]byte(req.Text))
	hasher.Write([]byte{0})

	types := make([]string, len(req.Entities))
	for i, t := range req.Entities {
		types[i] = string(t)
	}
	sort.Strings(types)
	hasher.Write([]byte(strings.Join(types, ",")))
	hasher.Write([]byte{0})

	if req.ScoreThreshold != nil {
		fmt.Fprintf(hasher, "%.3f", *req.ScoreThreshold)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:res:%s", rc.config.KeyPrefix, hash[:32])
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}

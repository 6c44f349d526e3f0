package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

const snapshotTTL = 24 * time.Hour

// SnapshotCache keeps the latest questionnaire snapshot per (country,
// report_date) pair so reads can skip the database. A miss is (nil, nil).
type SnapshotCache interface {
	Store(ctx context.Context, qn *models.Questionnaire) error
	Get(ctx context.Context, country, reportDate string) (*models.Questionnaire, error)
	Invalidate(ctx context.Context, country, reportDate string) error
}

// NewSnapshotCache picks Redis when configured and reachable, otherwise the
// in-process cache. The process works the same either way; Redis just lets
// replicas share snapshots.
func NewSnapshotCache(cfg *config.RedisConfig) SnapshotCache {
	if cfg == nil || !cfg.Enabled {
		return NewMemorySnapshotCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, using in-process snapshot cache")
		return NewMemorySnapshotCache()
	}
	return NewRedisSnapshotCache(client)
}

func snapshotCacheKey(country, reportDate string) string {
	return "dqagent:snapshot:" + models.SnapshotKey(country, reportDate)
}

// RedisSnapshotCache stores snapshots as JSON values with a TTL.
type RedisSnapshotCache struct {
	client *redis.Client
}

func NewRedisSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) Store(ctx context.Context, qn *models.Questionnaire) error {
	payload, err := json.Marshal(qn)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotCacheKey(qn.Country, qn.ReportDate), payload, snapshotTTL).Err()
}

func (c *RedisSnapshotCache) Get(ctx context.Context, country, reportDate string) (*models.Questionnaire, error) {
	payload, err := c.client.Get(ctx, snapshotCacheKey(country, reportDate)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var qn models.Questionnaire
	if err := json.Unmarshal(payload, &qn); err != nil {
		return nil, err
	}
	return &qn, nil
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, country, reportDate string) error {
	return c.client.Del(ctx, snapshotCacheKey(country, reportDate)).Err()
}

type memorySnapshot struct {
	payload   []byte
	expiresAt time.Time
}

// MemorySnapshotCache is the single-process fallback. Entries are stored
// serialized so readers get copies, matching the Redis behavior.
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]memorySnapshot
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{entries: make(map[string]memorySnapshot)}
}

func (c *MemorySnapshotCache) Store(_ context.Context, qn *models.Questionnaire) error {
	payload, err := json.Marshal(qn)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[snapshotCacheKey(qn.Country, qn.ReportDate)] = memorySnapshot{
		payload:   payload,
		expiresAt: time.Now().Add(snapshotTTL),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemorySnapshotCache) Get(_ context.Context, country, reportDate string) (*models.Questionnaire, error) {
	key := snapshotCacheKey(country, reportDate)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}

	var qn models.Questionnaire
	if err := json.Unmarshal(entry.payload, &qn); err != nil {
		return nil, err
	}
	return &qn, nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context, country, reportDate string) error {
	c.mu.Lock()
	delete(c.entries, snapshotCacheKey(country, reportDate))
	c.mu.Unlock()
	return nil
}

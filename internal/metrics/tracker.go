// Package metrics tracks transfer activity. Counters and the recent-imports
// feed live in Redis so they survive restarts and are shared across
// instances; Prometheus collectors expose per-process operational metrics.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/logger"
)

// ActivityTracker is the activity-feed surface handlers depend on.
type ActivityTracker interface {
	IncrementExported(ctx context.Context, contentType string) error
	IncrementImported(ctx context.Context, contentType string) error
	IncrementFailed(ctx context.Context, contentType string) error
	AddRecentImport(ctx context.Context, item RecentImport) error
	GetStats(ctx context.Context) (*Stats, error)
	GetRecentImports(ctx context.Context, limit int) ([]RecentImport, error)
	UpdateLastImport(ctx context.Context) error
}

// Tracker implements ActivityTracker using Redis
type Tracker struct {
	client       redis.UniversalClient
	keys         *RedisKeys
	logger       logger.Logger
	contentTypes []string // For GetStats aggregation
}

// NewTracker creates a new activity tracker
func NewTracker(client redis.UniversalClient, contentTypes []string, log logger.Logger) *Tracker {
	return &Tracker{
		client:       client,
		keys:         NewRedisKeys(KeyPrefixMetrics),
		logger:       log,
		contentTypes: contentTypes,
	}
}

func (t *Tracker) increment(ctx context.Context, key, what, contentType string) error {
	ttl := MetricsTTLDays * 24 * time.Hour

	// Pipeline keeps the increment and its TTL refresh atomic
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to increment counter",
			logger.String("counter", what),
			logger.String("content_type", contentType),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("increment %s counter: %w", what, err)
	}
	return nil
}

// IncrementExported increments the exported counter for a content type
func (t *Tracker) IncrementExported(ctx context.Context, contentType string) error {
	return t.increment(ctx, t.keys.Exported(contentType), "exported", contentType)
}

// IncrementImported increments the imported counter for a content type
func (t *Tracker) IncrementImported(ctx context.Context, contentType string) error {
	return t.increment(ctx, t.keys.Imported(contentType), "imported", contentType)
}

// IncrementFailed increments the failed-import counter for a content type
func (t *Tracker) IncrementFailed(ctx context.Context, contentType string) error {
	return t.increment(ctx, t.keys.Failed(contentType), "failed", contentType)
}

// AddRecentImport pushes an import onto the recent-imports feed
func (t *Tracker) AddRecentImport(ctx context.Context, item RecentImport) error {
	if item.ImportedAt.IsZero() {
		item.ImportedAt = time.Now()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal recent import: %w", err)
	}

	ttl := RecentImportsTTLDays * 24 * time.Hour

	// LPUSH + LTRIM keeps the newest MaxRecentImports entries
	pipe := t.client.Pipeline()
	pipe.LPush(ctx, KeyRecentImports, data)
	pipe.LTrim(ctx, KeyRecentImports, 0, MaxRecentImports-1)
	pipe.Expire(ctx, KeyRecentImports, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to add recent import",
			logger.Int64("record_id", item.RecordID),
			logger.Error(err),
		)
		return fmt.Errorf("add recent import: %w", err)
	}
	return nil
}

// GetStats returns aggregated statistics using a Redis pipeline for atomic reads
func (t *Tracker) GetStats(ctx context.Context) (*Stats, error) {
	pipe := t.client.Pipeline()

	exportedCmds := make(map[string]*redis.StringCmd)
	importedCmds := make(map[string]*redis.StringCmd)
	failedCmds := make(map[string]*redis.StringCmd)

	for _, contentType := range t.contentTypes {
		exportedCmds[contentType] = pipe.Get(ctx, t.keys.Exported(contentType))
		importedCmds[contentType] = pipe.Get(ctx, t.keys.Imported(contentType))
		failedCmds[contentType] = pipe.Get(ctx, t.keys.Failed(contentType))
	}
	lastImportCmd := pipe.Get(ctx, KeyLastImport)

	if _, execErr := pipe.Exec(ctx); execErr != nil && !errors.Is(execErr, redis.Nil) {
		return nil, fmt.Errorf("execute pipeline: %w", execErr)
	}

	stats := &Stats{
		ContentTypes: make([]ContentTypeStats, 0, len(t.contentTypes)),
	}

	for _, contentType := range t.contentTypes {
		typeStats := ContentTypeStats{Name: contentType}

		// Missing keys read as zero
		if v, err := exportedCmds[contentType].Int64(); err == nil {
			typeStats.Exported = v
			stats.TotalExported += v
		}
		if v, err := importedCmds[contentType].Int64(); err == nil {
			typeStats.Imported = v
			stats.TotalImported += v
		}
		if v, err := failedCmds[contentType].Int64(); err == nil {
			typeStats.Failed = v
			stats.TotalFailed += v
		}

		stats.ContentTypes = append(stats.ContentTypes, typeStats)
	}

	if lastImportStr, err := lastImportCmd.Result(); err == nil && lastImportStr != "" {
		if lastImport, parseErr := time.Parse(time.RFC3339, lastImportStr); parseErr == nil {
			stats.LastImport = lastImport
		}
	}

	return stats, nil
}

// GetRecentImports returns the newest entries of the recent-imports feed
func (t *Tracker) GetRecentImports(ctx context.Context, limit int) ([]RecentImport, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxRecentImports {
		limit = MaxRecentImports
	}

	results, err := t.client.LRange(ctx, KeyRecentImports, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []RecentImport{}, nil
		}
		return nil, fmt.Errorf("get recent imports: %w", err)
	}

	items := make([]RecentImport, 0, len(results))
	for _, result := range results {
		var item RecentImport
		if unmarshalErr := json.Unmarshal([]byte(result), &item); unmarshalErr != nil {
			t.logger.Warn("Failed to unmarshal recent import",
				logger.Error(unmarshalErr),
			)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateLastImport updates the last import timestamp
func (t *Tracker) UpdateLastImport(ctx context.Context) error {
	now := time.Now().Format(time.RFC3339)

	if err := t.client.Set(ctx, KeyLastImport, now, 0).Err(); err != nil {
		t.logger.Warn("Failed to update last import timestamp",
			logger.Error(err),
		)
		return fmt.Errorf("update last import: %w", err)
	}
	return nil
}

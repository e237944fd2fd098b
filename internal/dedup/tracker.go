// Package dedup remembers which source media URLs have already been
// sideloaded so repeated imports reuse attachments instead of downloading
// the same file again.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/models"
)

const keyPrefix = "porter:media:"

// Tracker caches completed media translations in Redis. All methods are safe
// on a nil receiver so the cache can be disabled by configuration.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTracker creates a tracker. ttl bounds how long a cached translation is
// trusted; zero means no expiry.
func NewTracker(client *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

// key hashes the URL so arbitrary source URLs produce fixed-size keys.
func (t *Tracker) key(sourceURL string) string {
	return fmt.Sprintf("%s%x", keyPrefix, sha256.Sum256([]byte(sourceURL)))
}

// Lookup returns the cached translation for a source URL. Cache misses and
// Redis errors both report false; the caller falls back to downloading.
func (t *Tracker) Lookup(ctx context.Context, sourceURL string) (models.MediaTranslation, bool) {
	if t == nil || t.client == nil {
		return models.MediaTranslation{}, false
	}

	payload, err := t.client.Get(ctx, t.key(sourceURL)).Bytes()
	if err == redis.Nil {
		return models.MediaTranslation{}, false
	}
	if err != nil {
		t.logger.Warn("Redis error looking up media translation",
			logger.String("url", sourceURL),
			logger.Error(err),
		)
		return models.MediaTranslation{}, false
	}

	var translation models.MediaTranslation
	if err := json.Unmarshal(payload, &translation); err != nil {
		t.logger.Warn("Corrupt media cache entry, ignoring",
			logger.String("url", sourceURL),
			logger.Error(err),
		)
		return models.MediaTranslation{}, false
	}

	t.logger.Debug("Media translation served from cache",
		logger.String("url", sourceURL),
		logger.Int64("attachment_id", translation.AttachmentID),
	)
	return translation, true
}

// Mark records a successful translation. Failures are logged, never fatal:
// losing a cache entry only costs a re-download.
func (t *Tracker) Mark(ctx context.Context, sourceURL string, translation models.MediaTranslation) {
	if t == nil || t.client == nil {
		return
	}

	payload, err := json.Marshal(translation)
	if err != nil {
		t.logger.Warn("Failed to encode media translation",
			logger.String("url", sourceURL),
			logger.Error(err),
		)
		return
	}

	if err := t.client.Set(ctx, t.key(sourceURL), payload, t.ttl).Err(); err != nil {
		t.logger.Warn("Redis error caching media translation",
			logger.String("url", sourceURL),
			logger.Duration("ttl", t.ttl),
			logger.Error(err),
		)
	}
}

// Clear drops the cached translation for one source URL.
func (t *Tracker) Clear(ctx context.Context, sourceURL string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.key(sourceURL)).Err()
}

// FlushAll removes every cached media translation. Uses SCAN rather than
// FLUSHDB so unrelated keys in the same database survive.
func (t *Tracker) FlushAll(ctx context.Context) error {
	if t == nil || t.client == nil {
		return nil
	}

	pattern := keyPrefix + "*"
	var cursor uint64
	var deletedCount int

	for {
		var keys []string
		var err error
		const scanBatchSize = 100
		keys, cursor, err = t.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, delErr := t.client.Del(ctx, keys...).Result()
			if delErr != nil {
				return fmt.Errorf("delete keys: %w", delErr)
			}
			deletedCount += int(deleted)
		}

		if cursor == 0 {
			break
		}
	}

	t.logger.Info("Flushed media translation cache",
		logger.Int("keys_deleted", deletedCount),
	)
	return nil
}

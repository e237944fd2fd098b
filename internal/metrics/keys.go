package metrics

import "fmt"

const (
	// KeyPrefixMetrics is the prefix for all metrics keys
	KeyPrefixMetrics = "metrics"
	// KeyPrefixExported is the prefix for exported counters
	KeyPrefixExported = "exported"
	// KeyPrefixImported is the prefix for imported counters
	KeyPrefixImported = "imported"
	// KeyPrefixFailed is the prefix for failed-import counters
	KeyPrefixFailed = "failed"
	// KeyRecentImports is the Redis key for the recent imports list
	KeyRecentImports = "metrics:recent:imports"
	// KeyLastImport is the Redis key for the last import timestamp
	KeyLastImport = "metrics:last_import"
	// MaxRecentImports is the maximum number of recent imports to keep
	MaxRecentImports = 100
	// MetricsTTLDays is the TTL in days for metrics counters
	MetricsTTLDays = 30
	// RecentImportsTTLDays is the TTL in days for the recent imports list
	RecentImportsTTLDays = 7
)

// RedisKeys provides methods to build Redis keys consistently
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Exported returns the Redis key for the exported counter of a content type
func (k *RedisKeys) Exported(contentType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixExported, contentType)
}

// Imported returns the Redis key for the imported counter of a content type
func (k *RedisKeys) Imported(contentType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixImported, contentType)
}

// Failed returns the Redis key for the failed counter of a content type
func (k *RedisKeys) Failed(contentType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixFailed, contentType)
}

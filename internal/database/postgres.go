package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// maxOpenConns caps concurrent store access. Every import item holds one
	// connection for the full length of its transaction, including media
	// downloads, so the pool stays small on purpose.
	maxOpenConns = 16

	// maxIdleConns keeps a few warm connections between transfer requests
	maxIdleConns = 4

	// connMaxLifetime recycles pooled connections so a long-lived transfer
	// service survives server-side idle disconnects.
	connMaxLifetime = 30 * time.Minute

	// connectTimeoutSeconds bounds the TCP/auth handshake via the DSN
	connectTimeoutSeconds = 10

	// pingTimeout bounds the startup connectivity check
	pingTimeout = 5 * time.Second
)

// Config holds the connection parameters for the content store
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (cfg Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d application_name=porter",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		connectTimeoutSeconds,
	)
}

// NewPostgresConnection opens the content store, configures the pool for
// transaction-per-import-item usage and verifies connectivity.
func NewPostgresConnection(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Close closes the database connection
func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

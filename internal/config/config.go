package config

import (
	"fmt"
	"time"
)

// Database holds the database configuration
type Database struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d Database) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToMigrationUri returns a connection URI for golang-migrate with pgx5 driver
func (d Database) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// Crawler holds the configuration for the ingestion pipeline core
type Crawler struct {
	WorkerCount          int     `envconfig:"WORKER_COUNT" default:"4"`
	MaxHistorySize       int     `envconfig:"MAX_HISTORY_SIZE" default:"16"`
	MaxRetries           int     `envconfig:"MAX_RETRIES" default:"3"`
	BaseBackoffMs        int     `envconfig:"BASE_BACKOFF_MS" default:"1000"`
	BatchSize            int     `envconfig:"BATCH_SIZE" default:"50"`
	BatchTimeoutMs       int     `envconfig:"BATCH_TIMEOUT_MS" default:"5000"`
	MaxConcurrentFlushes int     `envconfig:"MAX_CONCURRENT_FLUSHES" default:"4"`
	DispatchBuffer       int     `envconfig:"DISPATCH_BUFFER" default:"5000"`
	AwaitTimeoutS        int     `envconfig:"AWAIT_TIMEOUT_S" default:"300"`
	ShutdownTimeoutS     int     `envconfig:"SHUTDOWN_TIMEOUT_S" default:"20"`
	TimerDrainTimeoutS   int     `envconfig:"TIMER_DRAIN_TIMEOUT_S" default:"100"`
	DistributionPolicy   string  `envconfig:"DISTRIBUTION_POLICY" default:"round_robin"`
	AffinityEpsilon      float64 `envconfig:"AFFINITY_EPSILON" default:"0.4"`
	FetchTimeoutS        int     `envconfig:"FETCH_TIMEOUT_S" default:"5"`
	UserAgent            string  `envconfig:"USER_AGENT" default:"castpipe/1.0"`
}

// BaseBackoff returns the initial retry delay
func (c Crawler) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffMs) * time.Millisecond
}

// BatchTimeout returns the batch flush deadline
func (c Crawler) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMs) * time.Millisecond
}

// Server holds the configuration for the crawler process
type Server struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	Database   Database
	Crawler    Crawler
}

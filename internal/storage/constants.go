package db

import (
	"time"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
)

// Run status constants (aliased from domain)
const (
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusSucceeded = domain.RunStatusSucceeded
	RunStatusFailed    = domain.RunStatusFailed
)

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 25
	defaultMinConns          int32         = 5
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the environment-driven configuration for the review-bias
// service. Paths and knobs always travel through this struct; packages
// never read process-wide state themselves.
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Input and output artifacts
	InputPath   string `env:"INPUT_PATH"`
	MembersPath string `env:"MEMBERS_PATH"`
	MappingPath string `env:"MAPPING_PATH"`
	OutputPath  string `env:"OUTPUT_PATH" envDefault:"./data/first_reviews.csv"`

	// Score extraction from combined per-criteria blobs
	OverallFieldID int   `env:"OVERALL_FIELD_ID" envDefault:"5"`
	ScoreFieldIDs  []int `env:"SCORE_FIELD_IDS" envSeparator:"," envDefault:"3,5,6,7"`

	// StrictMalformed aborts a run after the malformed-record report
	// instead of continuing with the valid rows.
	StrictMalformed bool `env:"STRICT_MALFORMED" envDefault:"false"`

	// Optional database sink
	PostgresDSN         string        `env:"POSTGRES_DSN"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Watch mode
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"30s"`
	InboxDir           string        `env:"INBOX_DIR" envDefault:"./inbox"`
	ArchiveDir         string        `env:"ARCHIVE_DIR" envDefault:"./inbox/processed"`

	// Queue mode
	AMQPURL      string `env:"AMQP_URL"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"reviews.raw"`
	AMQPPrefetch int    `env:"AMQP_PREFETCH" envDefault:"100"`
}

// Load reads the optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}

// DatabaseEnabled reports whether the optional Postgres sink is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.PostgresDSN != ""
}

// AMQPEnabled reports whether the queue source is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

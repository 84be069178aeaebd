// Package config provides the configuration for the sync pipeline.
// A single Config is constructed once at startup, validated, and passed by
// reference into every component; nothing reads configuration ambiently.
//
// The configuration is organized into logical sections:
//   - Sync: date-range mode, backfill bounds, operating timezone
//   - Source: source API endpoint, credential pair, page size
//   - Sink: sink API endpoint, token, dataset IDs, payload chunk size
//   - Reliability: retry budget, backoff schedule, rate-limit thresholds
//   - Logging: level and encoding
package config

import (
	"fmt"
	"time"
)

// Date-range modes recognized in SyncConfig.Mode.
const (
	// ModeDaily syncs "today" resolved in the configured timezone.
	ModeDaily = "daily"
	// ModeHistorical syncs an explicit inclusive date range.
	ModeHistorical = "historical"
)

// DateFormat is the calendar-date layout used in SyncConfig bounds.
const DateFormat = "2006-01-02"

// Config is the complete pipeline configuration.
type Config struct {
	Sync        SyncConfig        `yaml:"sync" json:"sync"`
	Source      SourceConfig      `yaml:"source" json:"source"`
	Sink        SinkConfig        `yaml:"sink" json:"sink"`
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// SyncConfig selects which dates a run covers.
type SyncConfig struct {
	// Mode is "daily" (today in Timezone) or "historical" (StartDate..EndDate)
	Mode string `yaml:"mode" json:"mode"`
	// StartDate is the inclusive first date of a historical range (YYYY-MM-DD)
	StartDate string `yaml:"start_date" json:"start_date"`
	// EndDate is the inclusive last date of a historical range (YYYY-MM-DD)
	EndDate string `yaml:"end_date" json:"end_date"`
	// Timezone resolves "today" in daily mode (IANA name)
	Timezone string `yaml:"timezone" json:"timezone"`
}

// SourceConfig describes the order/shipment source API.
type SourceConfig struct {
	// BaseURL is the source API root
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is the basic-auth username
	APIKey string `yaml:"api_key" json:"api_key"`
	// APISecret is the basic-auth password
	APISecret string `yaml:"api_secret" json:"api_secret"`
	// PageSize is the fixed page size for paginated list calls
	PageSize int `yaml:"page_size" json:"page_size"`
}

// SinkConfig describes the metrics-ingestion sink API.
type SinkConfig struct {
	// BaseURL is the sink API root
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIToken is sent in the x-api-key header
	APIToken string `yaml:"api_token" json:"api_token"`
	// OrdersDatasetID receives flattened order rows
	OrdersDatasetID string `yaml:"orders_dataset_id" json:"orders_dataset_id"`
	// OrderItemsDatasetID receives flattened line-item rows
	OrderItemsDatasetID string `yaml:"order_items_dataset_id" json:"order_items_dataset_id"`
	// ShipmentsDatasetID receives flattened shipment rows
	ShipmentsDatasetID string `yaml:"shipments_dataset_id" json:"shipments_dataset_id"`
	// ChunkSize is the sink-imposed maximum records per push
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// VerificationDelay is the settle wait before polling ingestion status
	VerificationDelay time.Duration `yaml:"verification_delay" json:"verification_delay"`
}

// ReliabilityConfig controls retry, backoff, and rate-limit behavior.
type ReliabilityConfig struct {
	// MaxRetries is the attempt budget per request
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// InitialBackoff is the first exponential backoff delay
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	// MaxBackoff caps the exponential backoff delay
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
	// RateLimitBuffer is added to every rate-limit wait as a safety margin
	RateLimitBuffer time.Duration `yaml:"rate_limit_buffer" json:"rate_limit_buffer"`
	// DefaultRetryAfter is used when a 429 carries no usable hint
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" json:"default_retry_after"`
	// SourceQuotaFloor pauses when source remaining quota drops below it
	SourceQuotaFloor int `yaml:"source_quota_floor" json:"source_quota_floor"`
	// SinkQuotaFloor pauses when sink remaining quota drops below it
	SinkQuotaFloor int `yaml:"sink_quota_floor" json:"sink_quota_floor"`
	// SinkQuotaPause is the fixed pause taken on low sink quota
	SinkQuotaPause time.Duration `yaml:"sink_quota_pause" json:"sink_quota_pause"`
	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// LoggingConfig controls operator-facing output.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// NewConfig returns a Config with production defaults. Credentials, URLs,
// and dataset IDs have no defaults and must come from the loaded file.
func NewConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Mode:     ModeDaily,
			Timezone: "America/Chicago",
		},
		Source: SourceConfig{
			PageSize: 500,
		},
		Sink: SinkConfig{
			ChunkSize:         100,
			VerificationDelay: 3 * time.Second,
		},
		Reliability: ReliabilityConfig{
			MaxRetries:        5,
			InitialBackoff:    time.Second,
			MaxBackoff:        60 * time.Second,
			RateLimitBuffer:   2 * time.Second,
			DefaultRetryAfter: 60 * time.Second,
			SourceQuotaFloor:  2,
			SinkQuotaFloor:    5,
			SinkQuotaPause:    2 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate validates the configuration for correctness. Configuration errors
// are the only errors that terminate the process, so everything a run depends
// on is checked here up front.
func (c *Config) Validate() error {
	switch c.Sync.Mode {
	case ModeDaily:
		if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Sync.Timezone, err)
		}
	case ModeHistorical:
		start, err := time.Parse(DateFormat, c.Sync.StartDate)
		if err != nil {
			return fmt.Errorf("invalid start_date %q: %w", c.Sync.StartDate, err)
		}
		end, err := time.Parse(DateFormat, c.Sync.EndDate)
		if err != nil {
			return fmt.Errorf("invalid end_date %q: %w", c.Sync.EndDate, err)
		}
		if start.After(end) {
			return fmt.Errorf("start_date %s is after end_date %s", c.Sync.StartDate, c.Sync.EndDate)
		}
	default:
		return fmt.Errorf("sync mode must be %q or %q, got %q", ModeDaily, ModeHistorical, c.Sync.Mode)
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("source base_url is required")
	}
	if c.Source.APIKey == "" || c.Source.APISecret == "" {
		return fmt.Errorf("source api_key and api_secret are required")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source page_size must be positive")
	}

	if c.Sink.BaseURL == "" {
		return fmt.Errorf("sink base_url is required")
	}
	if c.Sink.APIToken == "" {
		return fmt.Errorf("sink api_token is required")
	}
	if c.Sink.OrdersDatasetID == "" || c.Sink.OrderItemsDatasetID == "" || c.Sink.ShipmentsDatasetID == "" {
		return fmt.Errorf("sink dataset IDs are required for orders, order items, and shipments")
	}
	if c.Sink.ChunkSize <= 0 {
		return fmt.Errorf("sink chunk_size must be positive")
	}
	if c.Sink.VerificationDelay < 0 {
		return fmt.Errorf("sink verification_delay cannot be negative")
	}

	if c.Reliability.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	if c.Reliability.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.Reliability.MaxBackoff < c.Reliability.InitialBackoff {
		return fmt.Errorf("max_backoff cannot be below initial_backoff")
	}

	return nil
}

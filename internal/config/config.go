// Package config defines the configuration of a contig-rekey run. It is
// loaded from a YAML file, completed with defaults, and overridden by
// command-line flags.
package config

import "time"

// DefaultConfigPath is the config file read when --config is not given.
const DefaultConfigPath = "contig-rekey.yaml"

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// Config is the top-level configuration.
type Config struct {
	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Store selects and configures the variant record store.
	Store StoreConfig `yaml:"store"`

	// Synonyms configures where assembly reports are read from.
	Synonyms SynonymsConfig `yaml:"synonyms"`

	// Rekey tunes the rekeying engine.
	Rekey RekeyConfig `yaml:"rekey"`

	// Metrics configures pushing run metrics to a Prometheus Pushgateway.
	Metrics MetricsConfig `yaml:"metrics"`

	// Ledger configures the local run history database.
	Ledger LedgerConfig `yaml:"ledger"`

	// Sinks configures where run reports are delivered.
	Sinks SinksConfig `yaml:"sinks"`
}

// LoggingConfig controls the logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// RedactPatterns are extra regular expressions scrubbed from error
	// text in logs and run reports.
	RedactPatterns []string `yaml:"redactPatterns"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Mongo   MongoConfig  `yaml:"mongo"`
	Pebble  PebbleConfig `yaml:"pebble"`
}

// MongoConfig holds MongoDB connection settings. Host may also be a full
// mongodb:// URI.
type MongoConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	AuthSource     string        `yaml:"authSource"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// PebbleConfig holds the local Pebble store settings.
type PebbleConfig struct {
	Path string `yaml:"path"`
}

// SynonymsConfig configures the assembly report source.
type SynonymsConfig struct {
	// ReportLocation is a path or http(s) URL template containing
	// "{accession}". Gzipped reports are read transparently.
	ReportLocation string `yaml:"reportLocation"`
}

// RekeyConfig tunes the rekeying engine.
type RekeyConfig struct {
	BatchSize int  `yaml:"batchSize"`
	DryRun    bool `yaml:"dryRun"`
}

// MetricsConfig configures the Pushgateway. Metrics are not pushed when
// PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayURL"`
	Job            string `yaml:"job"`
}

// LedgerConfig configures the SQLite run ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SinksConfig configures the optional report sinks. The log sink is always
// active.
type SinksConfig struct {
	Slack   SlackSinkConfig   `yaml:"slack"`
	Webhook WebhookSinkConfig `yaml:"webhook"`
	S3      S3SinkConfig      `yaml:"s3"`
}

// SlackSinkConfig configures the Slack webhook sink.
type SlackSinkConfig struct {
	Enabled        bool     `yaml:"enabled"`
	WebhookURL     string   `yaml:"webhookURL"`
	Channel        string   `yaml:"channel"`
	SeverityFilter []string `yaml:"severityFilter"`
	// IncludeDryRuns posts dry-run reports too.
	IncludeDryRuns bool `yaml:"includeDryRuns"`
}

// WebhookSinkConfig configures the generic webhook sink.
type WebhookSinkConfig struct {
	Enabled        bool              `yaml:"enabled"`
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	SeverityFilter []string          `yaml:"severityFilter"`
	IncludeDryRuns bool              `yaml:"includeDryRuns"`
	// AllowedHosts restricts url to these hosts: exact names, "*.domain"
	// for one extra label, or "*".
	AllowedHosts []string `yaml:"allowedHosts"`
}

// S3SinkConfig configures the S3 archival sink.
type S3SinkConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	UsePathStyle   bool   `yaml:"usePathStyle"`
	IncludeDryRuns bool   `yaml:"includeDryRuns"`
}

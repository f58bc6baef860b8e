package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSeverities is the set of valid severity filter values.
var validSeverities = map[string]bool{
	"critical": true,
	"warning":  true,
	"info":     true,
}

// Validate checks the config for invalid or contradictory settings.
// It should be called after ApplyDefaults and returns the first error
// encountered.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSynonyms(); err != nil {
		return err
	}
	if err := c.validateRekey(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return c.validateSinks()
}

func (c *Config) validateLogging() error {
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid log format %q: must be json or text", c.Logging.Format)
	}
	for i, p := range c.Logging.RedactPatterns {
		if p == "" {
			return fmt.Errorf("logging.redactPatterns[%d] must not be empty", i)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendMongo:
		m := c.Store.Mongo
		if m.Host == "" {
			return fmt.Errorf("store.mongo.host must be set")
		}
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("store.mongo.port must be between 1 and 65535, got %d", m.Port)
		}
		if m.Database == "" || m.Collection == "" {
			return fmt.Errorf("store.mongo.database and store.mongo.collection must be set")
		}
		if m.Password != "" && m.Username == "" {
			return fmt.Errorf("store.mongo.password is set without store.mongo.username")
		}
		if m.ConnectTimeout <= 0 {
			return fmt.Errorf("store.mongo.connectTimeout must be positive, got %s", m.ConnectTimeout)
		}
	case BackendPebble:
		if c.Store.Pebble.Path == "" {
			return fmt.Errorf("store.pebble.path must be set for the pebble backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store.backend %q: must be mongo, pebble, or memory", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateSynonyms() error {
	if !strings.Contains(c.Synonyms.ReportLocation, "{accession}") {
		return fmt.Errorf("synonyms.reportLocation %q must contain {accession}", c.Synonyms.ReportLocation)
	}
	return nil
}

func (c *Config) validateRekey() error {
	if c.Rekey.BatchSize < 1 {
		return fmt.Errorf("rekey.batchSize must be >= 1, got %d", c.Rekey.BatchSize)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.PushgatewayURL == "" {
		return nil
	}
	u, err := url.Parse(c.Metrics.PushgatewayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("metrics.pushgatewayURL %q must be an http(s) URL", c.Metrics.PushgatewayURL)
	}
	if c.Metrics.Job == "" {
		return fmt.Errorf("metrics.job must be set when metrics.pushgatewayURL is set")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path must be set when the ledger is enabled")
	}
	return nil
}

func (c *Config) validateSinks() error {
	if err := validateSeverityFilter("sinks.slack.severityFilter", c.Sinks.Slack.SeverityFilter); err != nil {
		return err
	}
	if err := validateSeverityFilter("sinks.webhook.severityFilter", c.Sinks.Webhook.SeverityFilter); err != nil {
		return err
	}

	if c.Sinks.Slack.Enabled && c.Sinks.Slack.WebhookURL == "" {
		return fmt.Errorf("sinks.slack.webhookURL must be set when slack sink is enabled")
	}
	if c.Sinks.Webhook.Enabled && c.Sinks.Webhook.URL == "" {
		return fmt.Errorf("sinks.webhook.url must be set when webhook sink is enabled")
	}
	if c.Sinks.S3.Enabled {
		if c.Sinks.S3.Bucket == "" {
			return fmt.Errorf("sinks.s3.bucket must be set when s3 sink is enabled")
		}
		if c.Sinks.S3.Region == "" {
			return fmt.Errorf("sinks.s3.region must be set when s3 sink is enabled")
		}
	}
	return nil
}

// validateSeverityFilter checks that all values in a severity filter list
// are recognized severity strings.
func validateSeverityFilter(field string, values []string) error {
	for i, v := range values {
		if !validSeverities[v] {
			return fmt.Errorf("%s[%d]: invalid severity %q: must be critical, warning, or info", field, i, v)
		}
	}
	return nil
}

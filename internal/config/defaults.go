package config

import "time"

// Default returns a Config populated with defaults that match the
// production EVA accessioning database layout.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		Store: StoreConfig{
			Backend: BackendMongo,
			Mongo: MongoConfig{
				Host:           "localhost",
				Port:           27017,
				AuthSource:     "admin",
				Database:       "eva_accession_sharded",
				Collection:     "submittedVariantEntity",
				ConnectTimeout: 30 * time.Second,
			},
			Pebble: PebbleConfig{
				Path: "contig-rekey-store",
			},
		},

		Synonyms: SynonymsConfig{
			ReportLocation: "assembly_reports/{accession}_assembly_report.txt",
		},

		Rekey: RekeyConfig{
			BatchSize: 1000,
		},

		Metrics: MetricsConfig{
			Job: "contig_rekey",
		},

		Ledger: LedgerConfig{
			Path: "contig-rekey-ledger.db",
		},

		Sinks: SinksConfig{
			S3: S3SinkConfig{
				Prefix: "contig-rekey/",
			},
		},
	}
}

// ApplyDefaults fills zero-valued fields of c with the values from
// Default(). Booleans are left as loaded.
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}

	// Store
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	m, dm := &c.Store.Mongo, d.Store.Mongo
	if m.Host == "" {
		m.Host = dm.Host
	}
	if m.Port == 0 {
		m.Port = dm.Port
	}
	if m.AuthSource == "" {
		m.AuthSource = dm.AuthSource
	}
	if m.Database == "" {
		m.Database = dm.Database
	}
	if m.Collection == "" {
		m.Collection = dm.Collection
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = dm.ConnectTimeout
	}
	if c.Store.Pebble.Path == "" {
		c.Store.Pebble.Path = d.Store.Pebble.Path
	}

	if c.Synonyms.ReportLocation == "" {
		c.Synonyms.ReportLocation = d.Synonyms.ReportLocation
	}
	if c.Rekey.BatchSize == 0 {
		c.Rekey.BatchSize = d.Rekey.BatchSize
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = d.Metrics.Job
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = d.Ledger.Path
	}
	if c.Sinks.S3.Prefix == "" {
		c.Sinks.S3.Prefix = d.Sinks.S3.Prefix
	}
}

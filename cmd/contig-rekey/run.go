package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/contig-rekey/contig-rekey/internal/config"
	"github.com/contig-rekey/contig-rekey/internal/ledger"
	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/redact"
	"github.com/contig-rekey/contig-rekey/internal/rekey"
	"github.com/contig-rekey/contig-rekey/internal/synonym"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	studies  []string
	assembly string

	backend       string
	mongoHost     string
	mongoPort     int
	mongoUser     string
	mongoPassword string
	pebblePath    string
	reportLoc     string
	batchSize     int
	dryRun        bool
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rekey the records of one assembly and set of studies",
		Example: `  contig-rekey run --studies PRJEB1,PRJEB2 --assembly GCA_000001405.15 \
    --mongo-host mongo-0 --mongo-user eva --mongo-password '${ENV:MONGO_PASSWORD}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(*configPath, opts.overrides(cmd)...)
			if err != nil {
				return err
			}
			logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return runRekey(context.Background(), cfg, opts, cmd.OutOrStdout(), logger)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.studies, "studies", nil, "comma separated study accessions (required)")
	f.StringVar(&opts.assembly, "assembly", "", "assembly accession the records are reported against (required)")
	f.StringVar(&opts.backend, "store", "", "record store backend: mongo, pebble, or memory")
	f.StringVar(&opts.mongoHost, "mongo-host", "", "MongoDB host or mongodb:// URI")
	f.IntVar(&opts.mongoPort, "mongo-port", 0, "MongoDB port")
	f.StringVar(&opts.mongoUser, "mongo-user", "", "MongoDB user")
	f.StringVar(&opts.mongoPassword, "mongo-password", "", "MongoDB password; ${ENV:NAME} and ${FILE:/path} are resolved")
	f.StringVar(&opts.pebblePath, "pebble-path", "", "directory of the pebble record store")
	f.StringVar(&opts.reportLoc, "assembly-report", "", "assembly report path or URL template containing {accession}")
	f.IntVar(&opts.batchSize, "batch-size", 0, "number of rewrites per bulk insert and delete")
	f.BoolVar(&opts.dryRun, "dry-run", false, "resolve and count rewrites without writing")
	_ = cmd.MarkFlagRequired("studies")
	_ = cmd.MarkFlagRequired("assembly")
	return cmd
}

// overrides returns the config changes requested by explicitly set flags.
func (o *runOptions) overrides(cmd *cobra.Command) []config.Override {
	changed := cmd.Flags().Changed
	var out []config.Override
	set := func(flag string, fn config.Override) {
		if changed(flag) {
			out = append(out, fn)
		}
	}
	set("store", func(c *config.Config) { c.Store.Backend = o.backend })
	set("mongo-host", func(c *config.Config) { c.Store.Mongo.Host = o.mongoHost })
	set("mongo-port", func(c *config.Config) { c.Store.Mongo.Port = o.mongoPort })
	set("mongo-user", func(c *config.Config) { c.Store.Mongo.Username = o.mongoUser })
	set("mongo-password", func(c *config.Config) { c.Store.Mongo.Password = o.mongoPassword })
	set("pebble-path", func(c *config.Config) { c.Store.Pebble.Path = o.pebblePath })
	set("assembly-report", func(c *config.Config) { c.Synonyms.ReportLocation = o.reportLoc })
	set("batch-size", func(c *config.Config) { c.Rekey.BatchSize = o.batchSize })
	set("dry-run", func(c *config.Config) { c.Rekey.DryRun = o.dryRun })
	return out
}

// loggedError is a failure that has already been logged.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

// runRekey performs one run and its bookkeeping. A fatal run error is
// returned redacted; bookkeeping failures are only logged.
func runRekey(ctx context.Context, cfg *config.Config, opts runOptions, stdout io.Writer, logger *slog.Logger) error {
	req := rekey.Request{Assembly: opts.assembly, Studies: cleanStudies(opts.studies)}
	if err := req.Validate(); err != nil {
		return err
	}

	redactor, err := redact.New(cfg.Logging.RedactPatterns, redact.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building redactor: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	sinks, err := buildSinks(ctx, cfg, logger, m)
	if err != nil {
		return err
	}

	report, err := model.NewRunReport(req.Assembly, req.Studies)
	if err != nil {
		return err
	}
	logger = logger.With("run_id", report.RunID)

	summary, runErr := execute(ctx, cfg, req, logger, m)

	kind := rekey.FailureKind(runErr)
	report.Complete(summary, cfg.Rekey.DryRun, runErr, kind)
	report.Error = redactor.Error(runErr)
	m.ObserveRun(string(report.Outcome), kind, report.Duration().Seconds())

	if cfg.Ledger.Enabled {
		recordRun(ctx, cfg.Ledger.Path, report, logger)
	}
	sinks.DeliverAll(ctx, report)
	if err := pushMetrics(ctx, cfg.Metrics, reg, report); err != nil {
		logger.Warn("pushing metrics failed", "error", redactor.Error(err))
	}

	printSummary(stdout, report)
	if runErr != nil {
		logger.Error("run failed", "failure_kind", kind, "error", report.Error)
		return &loggedError{err: fmt.Errorf("run %s failed (%s): %s", report.RunID, kind, report.Error)}
	}
	return nil
}

// execute loads the synonyms, opens the store, and runs the engine. The
// store is closed on every path.
func execute(ctx context.Context, cfg *config.Config, req rekey.Request, logger *slog.Logger, m *metrics.Metrics) (model.Summary, error) {
	src, err := synonym.NewAssemblyReportSource(cfg.Synonyms.ReportLocation, logger)
	if err != nil {
		return model.Summary{}, err
	}
	resolver, err := synonym.Load(ctx, src, req.Assembly)
	if err != nil {
		return model.Summary{}, err
	}
	logger.Info("synonyms loaded", "assembly", req.Assembly, "sequences", resolver.Len())

	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return model.Summary{}, &rekey.StoreError{Op: "open", Err: err}
	}
	defer func() {
		if err := s.Close(ctx); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}()

	engine, err := rekey.NewEngine(s, resolver,
		rekey.WithBatchSize(cfg.Rekey.BatchSize),
		rekey.WithDryRun(cfg.Rekey.DryRun),
		rekey.WithLogger(logger),
		rekey.WithMetrics(m),
	)
	if err != nil {
		return model.Summary{}, err
	}
	return engine.Run(ctx, req)
}

func recordRun(ctx context.Context, path string, report *model.RunReport, logger *slog.Logger) {
	l, err := ledger.Open(ctx, path, logger)
	if err != nil {
		logger.Warn("opening ledger failed", "error", err)
		return
	}
	defer l.Close()
	if err := l.Record(ctx, report); err != nil {
		logger.Warn("recording run failed", "error", err)
	}
}

// printSummary writes the run counts in a stable, line-oriented form.
func printSummary(w io.Writer, report *model.RunReport) {
	s := report.Summary
	fmt.Fprintf(w, "run_id: %s\n", report.RunID)
	fmt.Fprintf(w, "checked: %d\n", s.Checked)
	fmt.Fprintf(w, "already_canonical: %d\n", s.AlreadyCanonical)
	fmt.Fprintf(w, "inserted: %d\n", s.Inserted)
	fmt.Fprintf(w, "deleted: %d\n", s.Deleted)
	if report.Outcome == model.OutcomeDryRun {
		fmt.Fprintf(w, "staged: %d\n", s.Staged)
	}
	fmt.Fprintf(w, "outcome: %s\n", report.Outcome)
}

// cleanStudies trims whitespace around each study and drops empty entries.
func cleanStudies(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

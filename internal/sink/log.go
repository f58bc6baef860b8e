package sink

import (
	"context"
	"log/slog"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

const logSinkName = "log"

// LogSink outputs run reports as structured log lines. It is always
// enabled, so every report is captured even if all external sinks are down.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a new LogSink. The logger must not be nil.
func NewLogSink(logger *slog.Logger) (*LogSink, error) {
	if logger == nil {
		return nil, errNilLogger
	}
	return &LogSink{
		logger: logger,
	}, nil
}

// Name returns "log".
func (s *LogSink) Name() string {
	return logSinkName
}

// Deliver writes the run report as one structured log entry at a level
// matching its severity. It never retries.
func (s *LogSink) Deliver(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return errNilReport
	}

	s.logger.Log(ctx, logLevel(report.Severity), "run_report",
		"run_id", report.RunID,
		"assembly", report.Assembly,
		"studies", report.StudyList(),
		"outcome", string(report.Outcome),
		"severity", string(report.Severity),
		"checked", report.Summary.Checked,
		"already_canonical", report.Summary.AlreadyCanonical,
		"inserted", report.Summary.Inserted,
		"deleted", report.Summary.Deleted,
		"staged", report.Summary.Staged,
		"reconciled", report.Summary.Reconciled(),
		"failure_kind", report.FailureKind,
		"error", report.Error,
		"duration", report.Duration().String(),
	)
	return nil
}

// Filter accepts every report, dry runs included.
func (s *LogSink) Filter() Filter {
	return Filter{DryRuns: true}
}

func logLevel(s model.Severity) slog.Level {
	switch s {
	case model.SeverityCritical:
		return slog.LevelError
	case model.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

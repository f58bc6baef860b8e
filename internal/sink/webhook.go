package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

const (
	webhookSinkName = "webhook"
	// webhookEventType names the event in every webhook body.
	webhookEventType = "rekey_run"
	// idempotencyHeader carries the run ID so receivers can drop retried
	// deliveries of the same report.
	idempotencyHeader = "Idempotency-Key"
)

// WebhookConfig configures the generic webhook sink.
type WebhookConfig struct {
	URL string
	// Headers are sent with every request, e.g. an Authorization token.
	Headers map[string]string
	Filter  Filter
	// AllowedHosts, when set, restricts URL to these hosts. See
	// HostAllowlist for the entry syntax.
	AllowedHosts []string
}

// WebhookSink posts a rekey_run event for each run report.
type WebhookSink struct {
	client  *http.Client
	url     string
	headers http.Header
	filter  Filter
	logger  *slog.Logger
	backoff backoff
}

// webhookEvent is the JSON body of a webhook delivery.
type webhookEvent struct {
	Event           string         `json:"event"`
	RunID           string         `json:"run_id"`
	Assembly        string         `json:"assembly"`
	Studies         []string       `json:"studies"`
	Outcome         model.Outcome  `json:"outcome"`
	Severity        model.Severity `json:"severity"`
	Summary         model.Summary  `json:"summary"`
	Reconciled      bool           `json:"reconciled"`
	FailureKind     string         `json:"failure_kind,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
}

func newWebhookEvent(r *model.RunReport) webhookEvent {
	return webhookEvent{
		Event:           webhookEventType,
		RunID:           r.RunID,
		Assembly:        r.Assembly,
		Studies:         r.Studies,
		Outcome:         r.Outcome,
		Severity:        r.Severity,
		Summary:         r.Summary,
		Reconciled:      r.Summary.Reconciled(),
		FailureKind:     r.FailureKind,
		Error:           r.Error,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationSeconds: r.Duration().Seconds(),
	}
}

// NewWebhookSink creates a webhook sink, checking the URL against
// cfg.AllowedHosts when any are configured.
func NewWebhookSink(cfg WebhookConfig, logger *slog.Logger) (*WebhookSink, error) {
	if logger == nil {
		return nil, errNilLogger
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sink: URL must not be empty")
	}
	if len(cfg.AllowedHosts) > 0 {
		hosts, err := NewHostAllowlist(cfg.AllowedHosts)
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		if err := hosts.Check(cfg.URL); err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	return &WebhookSink{
		client:  deliveryClient(),
		url:     cfg.URL,
		headers: headers,
		filter:  cfg.Filter,
		logger:  logger,
		backoff: defaultBackoff(),
	}, nil
}

// Name returns "webhook".
func (s *WebhookSink) Name() string { return webhookSinkName }

// Filter returns the configured filter.
func (s *WebhookSink) Filter() Filter { return s.filter }

// Deliver posts the run's event. Every attempt carries the run ID as its
// Idempotency-Key.
func (s *WebhookSink) Deliver(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return errNilReport
	}
	headers := s.headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set(idempotencyHeader, report.RunID)
	event := newWebhookEvent(report)

	return retry(ctx, s.logger, webhookSinkName, s.backoff, func(ctx context.Context) error {
		return postJSON(ctx, s.client, webhookSinkName, s.url, headers, event)
	})
}

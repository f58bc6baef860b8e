package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

const slackSinkName = "slack"

// SlackConfig holds configuration for the Slack sink.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string
	// Channel overrides the default channel (optional).
	Channel string
	Filter  Filter
}

// SlackSink delivers run reports to Slack via incoming webhooks.
type SlackSink struct {
	client     *http.Client
	webhookURL string
	channel    string
	filter     Filter
	logger     *slog.Logger
	backoff    backoff
}

// NewSlackSink creates a Slack sink. The webhook URL must be on
// hooks.slack.com.
func NewSlackSink(cfg SlackConfig, logger *slog.Logger) (*SlackSink, error) {
	if logger == nil {
		return nil, errNilLogger
	}
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack sink: webhook URL must not be empty")
	}
	if err := slackHosts.Check(cfg.WebhookURL); err != nil {
		return nil, fmt.Errorf("slack sink: %w", err)
	}

	return &SlackSink{
		client:     deliveryClient(),
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		filter:     cfg.Filter,
		logger:     logger,
		backoff:    defaultBackoff(),
	}, nil
}

// Name returns "slack".
func (s *SlackSink) Name() string {
	return slackSinkName
}

// Filter returns the configured filter.
func (s *SlackSink) Filter() Filter {
	return s.filter
}

// Deliver sends the run report to Slack with retry logic.
func (s *SlackSink) Deliver(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return errNilReport
	}

	payload := s.buildPayload(report)
	return retry(ctx, s.logger, slackSinkName, s.backoff, func(ctx context.Context) error {
		return postJSON(ctx, s.client, slackSinkName, s.webhookURL, nil, payload)
	})
}

// slackPayload represents the Slack incoming webhook payload.
type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color    string       `json:"color"`
	Fallback string       `json:"fallback"`
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Fields   []slackField `json:"fields"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackSink) buildPayload(report *model.RunReport) slackPayload {
	title := fmt.Sprintf("contig-rekey %s: %s", report.Outcome, report.Assembly)
	text := fmt.Sprintf("*Studies:* %s", report.StudyList())
	if report.Error != "" {
		text += fmt.Sprintf("\n*Error (%s):* %s", report.FailureKind, report.Error)
	}

	sum := report.Summary
	fields := []slackField{
		{Title: "Checked", Value: strconv.Itoa(sum.Checked), Short: true},
		{Title: "Already canonical", Value: strconv.Itoa(sum.AlreadyCanonical), Short: true},
		{Title: "Inserted", Value: strconv.Itoa(sum.Inserted), Short: true},
		{Title: "Deleted", Value: strconv.Itoa(sum.Deleted), Short: true},
	}
	if report.Outcome == model.OutcomeDryRun {
		fields = append(fields, slackField{Title: "Staged", Value: strconv.Itoa(sum.Staged), Short: true})
	}
	fields = append(fields, slackField{Title: "Duration", Value: report.Duration().Round(time.Millisecond).String(), Short: true})

	return slackPayload{
		Channel: s.channel,
		Attachments: []slackAttachment{
			{
				Color:    severityColor(report.Severity),
				Fallback: fmt.Sprintf("[%s] %s", report.Severity, title),
				Title:    title,
				Text:     text,
				Fields:   fields,
			},
		},
	}
}

// severityColor maps severity to Slack attachment color codes.
func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#FF0000"
	case model.SeverityWarning:
		return "#FFA500"
	case model.SeverityInfo:
		return "#36A64F"
	default:
		return "#808080"
	}
}

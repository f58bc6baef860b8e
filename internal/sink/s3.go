package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

const s3SinkName = "s3"

// S3Sink archives run reports to an S3 bucket as JSON documents.
type S3Sink struct {
	client  *s3.Client
	bucket  string
	prefix  string
	filter  Filter
	logger  *slog.Logger
	backoff backoff
}

// S3Config holds configuration for the S3 sink.
type S3Config struct {
	Bucket string
	Region string
	Prefix string
	// Endpoint overrides the S3 endpoint for S3-compatible object stores.
	Endpoint string
	// UsePathStyle addresses the bucket in the path instead of the host.
	UsePathStyle bool
	// DryRuns archives dry-run reports too.
	DryRuns bool
}

// NewS3Sink creates a new S3 sink using the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket must not be empty")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 sink: region must not be empty")
	}
	if logger == nil {
		return nil, errNilLogger
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3 sink: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s, err := newS3SinkWithClient(client, cfg.Bucket, cfg.Prefix, logger)
	if err != nil {
		return nil, err
	}
	s.filter.DryRuns = cfg.DryRuns
	return s, nil
}

// newS3SinkWithClient creates an S3Sink with a pre-configured client. Used
// in tests to point the client at a local server.
func newS3SinkWithClient(client *s3.Client, bucket, prefix string, logger *slog.Logger) (*S3Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 sink: client must not be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket must not be empty")
	}
	if logger == nil {
		return nil, errNilLogger
	}
	return &S3Sink{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		logger:  logger,
		backoff: defaultBackoff(),
	}, nil
}

// Name returns "s3".
func (s *S3Sink) Name() string {
	return s3SinkName
}

// Filter returns a filter accepting every severity. Dry runs are archived
// only when configured.
func (s *S3Sink) Filter() Filter {
	return s.filter
}

// Deliver uploads the run report as JSON to S3 with retry logic.
func (s *S3Sink) Deliver(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return errNilReport
	}

	return retry(ctx, s.logger, s3SinkName, s.backoff, func(ctx context.Context) error {
		return s.deliver(ctx, report)
	})
}

func (s *S3Sink) deliver(ctx context.Context, report *model.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3 sink: marshaling report: %w", err)
	}

	key := s.objectKey(report)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 sink: uploading to s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Info("report archived to S3",
		"sink", s3SinkName,
		"bucket", s.bucket,
		"key", key,
		"run_id", report.RunID,
	)

	return nil
}

// objectKey generates the S3 object key for a report using the configured
// prefix, the assembly, date partitioning, and the run ID.
func (s *S3Sink) objectKey(report *model.RunReport) string {
	ts := report.StartedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("%s%s/%s/%s.json",
		s.prefix,
		report.Assembly,
		ts.Format("2006/01/02"),
		report.RunID,
	)
}

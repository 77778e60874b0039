// Package report delivers scan results to a sink: local files, object
// storage (S3, GCS), a warehouse table (BigQuery, SQL databases) or a
// Kafka topic.
package report

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/metrics"
)

// DefaultTable is the table written by warehouse sinks when none is configured
const DefaultTable = "crm_table_sizes"

// TableReport summarises the scan of one table
type TableReport struct {
	RunID       string `json:"run_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Pages       int    `json:"pages"`
	RecordCount int64  `json:"record_count"`
	SizeKB      int64  `json:"size_kb"`
	// Complete is false when the scan stopped at the page limit or failed
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns the scan duration
func (r TableReport) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Sink receives the reports of a scan run
type Sink interface {
	Write(ctx context.Context, reports []TableReport) error
	Close() error
}

// New builds the sink selected by cfg.Type
func New(ctx context.Context, cfg config.ReportConfig, logger *zap.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("component", "report"), zap.String("sink", cfg.Type))

	var (
		sink Sink
		err  error
	)
	switch cfg.Type {
	case "", "none":
		return nopSink{}, nil
	case "file":
		sink, err = NewFileSink(cfg, logger)
	case "s3":
		sink, err = NewS3Sink(ctx, cfg, logger)
	case "gcs":
		sink, err = NewGCSSink(ctx, cfg, logger)
	case "bigquery":
		sink, err = NewBigQuerySink(ctx, cfg, logger)
	case "sql":
		sink, err = NewSQLSink(ctx, cfg, logger)
	case "kafka":
		sink, err = NewKafkaSink(cfg, logger)
	default:
		return nil, fmt.Errorf("report.type %q is not supported", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{Sink: sink, name: cfg.Type}, nil
}

type nopSink struct{}

func (nopSink) Write(context.Context, []TableReport) error { return nil }
func (nopSink) Close() error                               { return nil }

// instrumented counts writes per sink
type instrumented struct {
	Sink
	name string
}

func (s *instrumented) Write(ctx context.Context, reports []TableReport) error {
	err := s.Sink.Write(ctx, reports)
	metrics.ReportsWritten.WithLabelValues(s.name, metrics.Status(err)).Inc()
	return err
}

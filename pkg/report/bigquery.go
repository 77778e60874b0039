package report

import (
	"context"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
)

// rowInserter is the part of bigquery.Inserter the sink uses
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams one row per table into a BigQuery table
type BigQuerySink struct {
	client   *bigquery.Client
	inserter rowInserter
	table    string
	logger   *zap.Logger
}

// bigQueryRow adapts a report to the streaming insert API. The insert id
// makes retried inserts of the same run idempotent.
type bigQueryRow TableReport

// Save implements bigquery.ValueSaver
func (r bigQueryRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"run_id":       r.RunID,
		"name":         r.Name,
		"display_name": r.DisplayName,
		"pages":        r.Pages,
		"record_count": r.RecordCount,
		"size_kb":      r.SizeKB,
		"complete":     r.Complete,
		"started_at":   r.StartedAt,
		"duration_ms":  r.DurationMS,
	}
	if r.Error != "" {
		row["error"] = r.Error
	}
	return row, r.RunID + "/" + r.Name, nil
}

// NewBigQuerySink creates a sink writing to project.dataset.table
func NewBigQuerySink(ctx context.Context, cfg config.ReportConfig, logger *zap.Logger) (*BigQuerySink, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	inserter := client.Dataset(cfg.Dataset).Table(table).Inserter()
	inserter.SkipInvalidRows = false

	return &BigQuerySink{
		client:   client,
		inserter: inserter,
		table:    cfg.Dataset + "." + table,
		logger:   logger,
	}, nil
}

// Write inserts the reports
func (s *BigQuerySink) Write(ctx context.Context, reports []TableReport) error {
	if len(reports) == 0 {
		return nil
	}

	rows := make([]bigquery.ValueSaver, len(reports))
	for i, r := range reports {
		rows[i] = bigQueryRow(r)
	}

	if err := s.inserter.Put(ctx, rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to insert report rows into BigQuery")
	}

	s.logger.Info("report rows inserted", zap.String("table", s.table), zap.Int("rows", len(rows)))
	return nil
}

// Close closes the BigQuery client
func (s *BigQuerySink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

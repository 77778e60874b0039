// Package estimator computes the storage footprint of one page of a CRM
// table. Each call reads the table metadata, derives a per-row cost model,
// fetches a single page of the measured columns and converts fixed costs
// plus measured characters into kilobytes. Paging state is handed back to
// the caller, which continues by calling again with the returned cookie.
package estimator

import (
	"context"
	"strconv"
	"unicode/utf16"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/logger"
	"github.com/udssoftware/crmsize/pkg/metrics"
	"github.com/udssoftware/crmsize/pkg/observability"
)

// Request identifies the page to estimate
type Request struct {
	Table string
	// Page is 1-based; values <= 0 are treated as 1
	Page int
	// PagingCookie is the cookie returned by the previous page, empty for none
	PagingCookie string
}

// SizeEstimate is the measured size of one page. The JSON names are the
// ones downstream consumers of the Metrics output parameter expect.
type SizeEstimate struct {
	TableName   string `json:"Name"`
	DisplayName string `json:"DisplayName"`
	RecordCount int    `json:"RecordCount"`
	SizeKB      int64  `json:"Size"`
}

// Result is the outcome of one estimation
type Result struct {
	Estimate     SizeEstimate
	PagingCookie string
	MoreRecords  bool

	Page           int
	PageSize       int
	Characters     int64
	Classification Classification
}

// Estimator estimates table sizes page by page
type Estimator struct {
	metadata crm.MetadataService
	query    crm.QueryService
	logger   *zap.Logger
	tracer   *observability.ComponentTracer
}

// New creates an estimator over the given CRM services
func New(metadata crm.MetadataService, query crm.QueryService, log *zap.Logger) *Estimator {
	if log == nil {
		log = logger.Get()
	}
	return &Estimator{
		metadata: metadata,
		query:    query,
		logger:   log.With(zap.String("component", "estimator")),
		tracer:   observability.NewComponentTracer("estimator"),
	}
}

// Estimate measures one page of req.Table.
//
// Recognised pagination faults from the query service produce an empty
// page. Every other error from either service is returned unchanged.
func (e *Estimator) Estimate(ctx context.Context, req Request) (result *Result, err error) {
	if req.Table == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "table name is required")
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	ctx = context.WithValue(ctx, logger.TableKey, req.Table)
	log := logger.FromContext(ctx, e.logger)

	ctx, span := e.tracer.StartSpan(ctx, "estimate",
		attribute.String("crm.table", req.Table),
		attribute.Int("crm.page", req.Page),
	)
	timer := metrics.NewTimer()
	defer func() {
		observability.EndStatus(span, err)
		span.End()
		metrics.InvocationLatency.WithLabelValues(metrics.Status(err)).Observe(timer.Stop().Seconds())
	}()

	table, err := e.metadata.FetchMetadata(ctx, req.Table)
	if err != nil {
		log.Error("failed to fetch table metadata", zap.Error(err))
		return nil, err
	}

	class := Classify(table.Columns)
	pageSize := PageSize(class.VariableMaxLength)

	log.Debug("classified columns",
		zap.Int("boolean_columns", class.BooleanCount),
		zap.Int("fixed_row_bytes", class.FixedRowBytes),
		zap.Strings("variable_columns", class.VariableColumns),
		zap.Int64("variable_max_length", class.VariableMaxLength),
		zap.Int("page_size", pageSize))

	page, err := e.fetchPage(ctx, log, crm.PageRequest{
		Table:        req.Table,
		PageNumber:   req.Page,
		PagingCookie: req.PagingCookie,
		PageSize:     pageSize,
		Columns:      class.VariableColumns,
	})
	if err != nil {
		return nil, err
	}

	chars := CharSize(page.Records, class.VariableColumns)
	rows := len(page.Records)
	sizeKB := SizeKB(class.FixedRowBytes, rows, chars)

	metrics.RowsScanned.WithLabelValues(req.Table).Add(float64(rows))
	metrics.CharactersMeasured.WithLabelValues(req.Table).Add(float64(chars))
	metrics.EstimatedKilobytes.WithLabelValues(req.Table).Add(float64(sizeKB))
	span.SetAttributes(
		attribute.Int("crm.records", rows),
		attribute.Int64("crm.size_kb", sizeKB),
		attribute.Bool("crm.more_records", page.MoreRecords),
	)

	log.Info("estimated page",
		zap.Int("page", req.Page),
		zap.Int("records", rows),
		zap.Int64("characters", chars),
		zap.Int64("size_kb", sizeKB),
		zap.Bool("more_records", page.MoreRecords))

	return &Result{
		Estimate: SizeEstimate{
			TableName:   req.Table,
			DisplayName: table.DisplayName,
			RecordCount: rows,
			SizeKB:      sizeKB,
		},
		PagingCookie:   page.PagingCookie,
		MoreRecords:    page.MoreRecords,
		Page:           req.Page,
		PageSize:       pageSize,
		Characters:     chars,
		Classification: class,
	}, nil
}

func (e *Estimator) fetchPage(ctx context.Context, log *zap.Logger, req crm.PageRequest) (*crm.PageResult, error) {
	page, err := e.query.FetchPage(ctx, req)
	if err == nil {
		metrics.PagesFetched.WithLabelValues(req.Table, "ok").Inc()
		return page, nil
	}

	if fault, ok := crm.AsBenignFault(err); ok {
		metrics.PagesFetched.WithLabelValues(req.Table, "benign_fault").Inc()
		metrics.BenignFaults.WithLabelValues(strconv.Itoa(int(fault.Code))).Inc()
		log.Warn("pagination fault, treating page as empty",
			zap.String("code", fault.HexCode()),
			zap.String("message", fault.Message))
		return crm.EmptyPage(), nil
	}

	metrics.PagesFetched.WithLabelValues(req.Table, "error").Inc()
	log.Error("failed to fetch page", zap.Int("page", req.PageNumber), zap.Error(err))
	return nil, err
}

// CharSize sums the length of every measured value, in UTF-16 code units.
// Null and empty values add nothing.
func CharSize(records []crm.Record, columns []string) int64 {
	var total int64
	for _, r := range records {
		for _, c := range columns {
			if v := r[c]; v != "" {
				total += int64(utf16Len(v))
			}
		}
	}
	return total
}

// SizeKB converts fixed row cost, row count and measured characters to
// whole kilobytes, rounding down.
func SizeKB(fixedRowBytes, rows int, chars int64) int64 {
	return (int64(fixedRowBytes)*int64(rows) + chars) / 1024
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

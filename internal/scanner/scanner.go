// Package scanner drives the plugin contract to exhaustion for whole
// tables. Each table is paged from page 1, feeding the returned paging
// cookie and the next page number back, until the CRM reports no more
// records or the page limit is reached. Tables are scanned in parallel.
//
// # Basic Usage
//
//	s := scanner.New(p, service, cfg.Scan, logger)
//	tables, err := s.Tables(ctx)
//	reports, err := s.Run(ctx, tables)
package scanner

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/logger"
	"github.com/udssoftware/crmsize/pkg/metrics"
	"github.com/udssoftware/crmsize/pkg/plugin"
	"github.com/udssoftware/crmsize/pkg/report"
)

// Scanner runs full-table scans through a plugin
type Scanner struct {
	plugin *plugin.Plugin
	lister crm.TableLister
	config config.ScanConfig
	logger *zap.Logger

	// Metrics
	pagesFetched  int64
	tablesScanned int64
	tablesFailed  int64
}

// Stats is a snapshot of the scanner counters
type Stats struct {
	PagesFetched  int64 `json:"pages_fetched"`
	TablesScanned int64 `json:"tables_scanned"`
	TablesFailed  int64 `json:"tables_failed"`
}

// New creates a scanner. lister may be nil when all-tables mode is not used.
func New(p *plugin.Plugin, lister crm.TableLister, cfg config.ScanConfig, log *zap.Logger) *Scanner {
	if log == nil {
		log = logger.Get()
	}
	return &Scanner{
		plugin: p,
		lister: lister,
		config: cfg,
		logger: log.With(zap.String("component", "scanner")),
	}
}

// Tables resolves the tables to scan: every table the CRM lists when
// all_tables is set, otherwise the configured names with duplicates removed.
func (s *Scanner) Tables(ctx context.Context) ([]string, error) {
	if s.config.AllTables {
		if s.lister == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "all-tables scan needs a backend that can list tables")
		}
		infos, err := s.lister.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.LogicalName)
		}
		return names, nil
	}

	seen := make(map[string]bool, len(s.config.Tables))
	names := make([]string, 0, len(s.config.Tables))
	for _, t := range s.config.Tables {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, t)
	}
	if len(names) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no tables to scan")
	}
	return names, nil
}

// Run scans every table and returns one report per table in input order.
// A failed table is recorded on its report; with fail_fast the first
// failure cancels the remaining tables and is returned.
func (s *Scanner) Run(ctx context.Context, tables []string) ([]report.TableReport, error) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := logger.FromContext(ctx, s.logger)

	workers := s.config.GetWorkers()
	log.Info("starting scan", zap.Int("tables", len(tables)), zap.Int("workers", workers))
	timer := metrics.NewTimer()

	reports := make([]report.TableReport, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, table := range tables {
		g.Go(func() error {
			rep, err := s.ScanTable(gctx, runID, table)
			reports[i] = rep
			if err != nil && s.config.FailFast {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info("scan finished",
		zap.Duration("duration", timer.Stop()),
		zap.Int64("pages", atomic.LoadInt64(&s.pagesFetched)),
		zap.Int64("failed", atomic.LoadInt64(&s.tablesFailed)),
		zap.Error(err))
	return reports, err
}

// ScanTable pages through one table and sums its record counts and sizes
func (s *Scanner) ScanTable(ctx context.Context, runID, table string) (rep report.TableReport, err error) {
	rep = report.TableReport{RunID: runID, Name: table, StartedAt: time.Now().UTC()}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, logger.TableKey, table)
	log := logger.FromContext(ctx, s.logger)

	defer func() {
		rep.DurationMS = time.Since(rep.StartedAt).Milliseconds()
		metrics.TablesScanned.WithLabelValues(metrics.Status(err)).Inc()
		if err != nil {
			atomic.AddInt64(&s.tablesFailed, 1)
			rep.Error = err.Error()
			log.Warn("table scan failed", zap.Int("pages", rep.Pages), zap.Error(err))
			return
		}
		atomic.AddInt64(&s.tablesScanned, 1)
		log.Info("table scanned",
			zap.Int("pages", rep.Pages),
			zap.Int64("records", rep.RecordCount),
			zap.Int64("size_kb", rep.SizeKB),
			zap.Bool("complete", rep.Complete))
	}()

	req := plugin.Request{Table: table, Page: 1}
	for {
		if s.config.MaxPages > 0 && rep.Pages >= s.config.MaxPages {
			return rep, nil
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		resp, err := s.plugin.Run(ctx, req)
		if err != nil {
			return rep, err
		}
		atomic.AddInt64(&s.pagesFetched, 1)

		rep.Pages++
		rep.DisplayName = resp.Estimate.DisplayName
		rep.RecordCount += int64(resp.Estimate.RecordCount)
		rep.SizeKB += resp.Estimate.SizeKB

		// an empty page stops the scan; past the first page it means the
		// table ended early and the totals are partial
		if resp.Estimate.RecordCount == 0 && (rep.Pages > 1 || resp.MoreRecords) {
			log.Warn("empty page before the end of the table",
				zap.Int("page", req.Page),
				zap.Bool("more_records", resp.MoreRecords))
			return rep, nil
		}
		if !resp.MoreRecords {
			rep.Complete = true
			return rep, nil
		}

		req.Page++
		req.PagingCookieIn = ""
		if resp.PagingCookieOut != nil {
			req.PagingCookieIn = *resp.PagingCookieOut
		}
	}
}

// Stats returns the counters accumulated across runs
func (s *Scanner) Stats() Stats {
	return Stats{
		PagesFetched:  atomic.LoadInt64(&s.pagesFetched),
		TablesScanned: atomic.LoadInt64(&s.tablesScanned),
		TablesFailed:  atomic.LoadInt64(&s.tablesFailed),
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/internal/scanner"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/crm/memory"
	"github.com/udssoftware/crmsize/pkg/crm/webapi"
	"github.com/udssoftware/crmsize/pkg/estimator"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/logger"
	"github.com/udssoftware/crmsize/pkg/metrics"
	"github.com/udssoftware/crmsize/pkg/observability"
	"github.com/udssoftware/crmsize/pkg/plugin"
	"github.com/udssoftware/crmsize/pkg/report"
)

// setup loads the configuration and starts logging, metrics and tracing
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadViper(a.v)
	if err != nil {
		return err
	}
	if a.demo {
		cfg.Service.Backend = config.BackendMemory
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	logger.Set(log)
	a.logger = log

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", addr))
	}

	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceName = cfg.Observability.ServiceName
		tc.ServiceVersion = version
		tc.Environment = cfg.Observability.Environment
		tc.SamplingRate = cfg.Observability.TracingSampleRate
		if err := observability.InitTracing(tc); err != nil {
			return err
		}
		a.tracing = true
	}
	return nil
}

// teardown flushes spans, stops the metrics server and closes the backend
func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.closeBackend != nil {
		errs = append(errs, a.closeBackend())
	}
	if a.tracing {
		errs = append(errs, observability.Shutdown(ctx))
	}
	if a.metricsServer != nil {
		errs = append(errs, a.metricsServer.Shutdown(ctx))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// openBackend connects the configured CRM implementation
func (a *app) openBackend(ctx context.Context) (backend, error) {
	if a.cfg.Service.Backend == config.BackendMemory {
		a.logger.Info("using demo tables")
		return memory.NewDemo(), nil
	}

	client, err := webapi.New(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.closeBackend = client.Close
	return client, nil
}

func (a *app) newPlugin(svc backend) *plugin.Plugin {
	return plugin.New(estimator.New(svc, svc, a.logger), a.logger)
}

func (a *app) runEstimate(ctx context.Context, table string, page int, cookie string) error {
	svc, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	exec := &plugin.ExecutionContext{
		InputParameters: plugin.ParameterCollection{
			plugin.InputTable: table,
			plugin.InputPage:  page,
		},
	}
	if cookie != "" {
		exec.InputParameters[plugin.InputPagingCookie] = cookie
	}

	if err := a.newPlugin(svc).Execute(ctx, exec); err != nil {
		return err
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(exec.OutputParameters)
}

func (a *app) runScan(ctx context.Context) error {
	svc, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	sink, err := report.New(ctx, a.cfg.Report, a.logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	s := scanner.New(a.newPlugin(svc), svc, a.cfg.Scan, a.logger)
	tables, err := s.Tables(ctx)
	if err != nil {
		return err
	}

	reports, scanErr := s.Run(ctx, tables)
	if err := renderReports(a.out, reports); err != nil {
		return err
	}
	if err := sink.Write(ctx, reports); err != nil {
		return err
	}
	return scanErr
}

func (a *app) runTables(ctx context.Context) error {
	svc, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	tables, err := svc.ListTables(ctx)
	if err != nil {
		return err
	}
	return renderTables(a.out, tables)
}

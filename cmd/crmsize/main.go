package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/crm"
)

var version = "0.1.0"

// backend is what the commands need from a CRM implementation
type backend interface {
	crm.Service
	crm.TableLister
}

// app carries the state shared by every command of one process
type app struct {
	v      *viper.Viper
	out    io.Writer
	cfg    *config.Config
	logger *zap.Logger

	demo          bool
	metricsServer *http.Server
	tracing       bool
	closeBackend  func() error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs one command line and releases everything the command opened
func execute(ctx context.Context, out io.Writer, args []string) error {
	a := &app{v: config.NewViper(), out: out}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(out)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "crmsize",
		Short: "Estimate the storage size of CRM tables",
		Long: `crmsize estimates the storage footprint of CRM tables one page at a time.
Each invocation reads a page of records, classifies the table's columns into
fixed-width and variable-width groups and reports the record count and an
estimated size in kilobytes, along with the paging state for the next page.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	flags.BoolVar(&a.demo, "demo", false, "Use the built-in demo tables instead of the Web API")
	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("observability.metrics_addr", flags.Lookup("metrics-addr"))
	_ = a.v.BindPFlag("observability.enable_tracing", flags.Lookup("trace"))

	root.AddCommand(
		a.estimateCommand(),
		a.scanCommand(),
		a.tablesCommand(),
		versionCommand(a.out),
	)
	return root
}

func (a *app) estimateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Run one estimator invocation",
		Long: `Run one invocation of the estimator and print its output parameters
(PagingCoockieOut, MoreRecords, Metrics) as JSON.

Example:
  crmsize estimate --table account --page 2 --cookie '<cookie page="1">...</cookie>'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _ := cmd.Flags().GetString("table")
			page, _ := cmd.Flags().GetInt("page")
			cookie, _ := cmd.Flags().GetString("cookie")
			return a.runEstimate(cmd.Context(), table, page, cookie)
		},
	}
	cmd.Flags().String("table", "", "Logical name of the table (required)")
	cmd.Flags().Int("page", 1, "Page number, starting at 1")
	cmd.Flags().String("cookie", "", "Paging cookie returned by the previous page")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (a *app) scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Page through whole tables and report their sizes",
		Long: `Page through one or more tables until the CRM reports no more records,
print a summary table and write the results to the configured report sink.

Example:
  crmsize scan --tables account,contact --max-pages 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context())
		},
	}
	cmd.Flags().StringSlice("tables", nil, "Comma separated logical table names")
	cmd.Flags().Bool("all-tables", false, "Scan every table the CRM lists")
	cmd.Flags().Int("max-pages", 0, "Stop each table after this many pages (0 = no limit)")
	cmd.Flags().Int("workers", 0, "Tables scanned in parallel (0 = number of CPUs)")
	cmd.Flags().Bool("fail-fast", false, "Stop the scan at the first failed table")
	_ = a.v.BindPFlag("scan.tables", cmd.Flags().Lookup("tables"))
	_ = a.v.BindPFlag("scan.all_tables", cmd.Flags().Lookup("all-tables"))
	_ = a.v.BindPFlag("scan.max_pages", cmd.Flags().Lookup("max-pages"))
	_ = a.v.BindPFlag("scan.workers", cmd.Flags().Lookup("workers"))
	_ = a.v.BindPFlag("scan.fail_fast", cmd.Flags().Lookup("fail-fast"))
	return cmd
}

func (a *app) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTables(cmd.Context())
		},
	}
}

func versionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "crmsize v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

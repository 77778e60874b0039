package report

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	// database/sql drivers selectable through report.driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

var reportColumns = []string{
	"run_id", "name", "display_name", "pages", "record_count", "size_kb",
	"complete", "started_at", "duration_ms", "error",
}

// dialect captures what differs between the supported databases
type dialect struct {
	driver      string
	placeholder func(n int) string
	columnTypes []string
}

var dialects = map[string]dialect{
	"pgx": {
		driver:      "pgx",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		columnTypes: []string{"TEXT", "TEXT", "TEXT", "INTEGER", "BIGINT", "BIGINT", "BOOLEAN", "TIMESTAMPTZ", "BIGINT", "TEXT"},
	},
	"mysql": {
		driver:      "mysql",
		placeholder: func(int) string { return "?" },
		columnTypes: []string{"VARCHAR(64)", "VARCHAR(255)", "VARCHAR(255)", "INT", "BIGINT", "BIGINT", "BOOLEAN", "DATETIME(3)", "BIGINT", "TEXT"},
	},
	"snowflake": {
		driver:      "snowflake",
		placeholder: func(int) string { return "?" },
		columnTypes: []string{"VARCHAR", "VARCHAR", "VARCHAR", "NUMBER", "NUMBER", "NUMBER", "BOOLEAN", "TIMESTAMP_TZ", "NUMBER", "VARCHAR"},
	},
}

func init() {
	dialects["postgres"] = dialects["pgx"]
}

// SQLSink inserts one row per table into a relational table
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	table   string
	logger  *zap.Logger
}

// NewSQLSink opens the database, checks connectivity and creates the
// report table when it does not exist
func NewSQLSink(ctx context.Context, cfg config.ReportConfig, logger *zap.Logger) (*SQLSink, error) {
	d, ok := dialects[strings.ToLower(cfg.Driver)]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported report driver %q", cfg.Driver)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open report database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to report database")
	}

	sink, err := newSQLSink(db, cfg.Driver, cfg.Table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := sink.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func newSQLSink(db *sql.DB, driver, table string, logger *zap.Logger) (*SQLSink, error) {
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported report driver %q", driver)
	}
	if table == "" {
		table = DefaultTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid report table name %q", table)
	}
	return &SQLSink{db: db, dialect: d, table: table, logger: logger}, nil
}

// CreateTableSQL returns the DDL of the report table
func (s *SQLSink) CreateTableSQL() string {
	defs := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		defs[i] = c + " " + s.dialect.columnTypes[i]
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table, strings.Join(defs, ", "))
}

// InsertSQL returns the parameterised insert statement
func (s *SQLSink) InsertSQL() string {
	params := make([]string, len(reportColumns))
	for i := range reportColumns {
		params[i] = s.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(reportColumns, ", "), strings.Join(params, ", "))
}

// EnsureTable creates the report table if needed
func (s *SQLSink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.CreateTableSQL()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create report table")
	}
	return nil
}

// Write inserts all reports in a single transaction
func (s *SQLSink) Write(ctx context.Context, reports []TableReport) (err error) {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin report transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.InsertSQL())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to prepare report insert")
	}
	defer stmt.Close()

	for _, r := range reports {
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx,
			r.RunID, r.Name, r.DisplayName, r.Pages, r.RecordCount, r.SizeKB,
			r.Complete, r.StartedAt, r.DurationMS, errText,
		); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to insert report row").WithDetail("table", r.Name)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit report rows")
	}

	s.logger.Info("report rows inserted", zap.String("table", s.table), zap.Int("rows", len(reports)))
	return nil
}

// Close closes the database
func (s *SQLSink) Close() error {
	return s.db.Close()
}

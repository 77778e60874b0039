package report

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udssoftware/crmsize/pkg/testutil"
)

func newMockSQLSink(t *testing.T, driver string) (*SQLSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sink, err := newSQLSink(db, driver, "", testutil.TestLogger(t))
	require.NoError(t, err)
	return sink, mock
}

func TestSQLSinkStatements(t *testing.T) {
	pg, _ := newMockSQLSink(t, "pgx")
	assert.Equal(t,
		"INSERT INTO crm_table_sizes (run_id, name, display_name, pages, record_count, size_kb, complete, started_at, duration_ms, error) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		pg.InsertSQL())
	assert.Contains(t, pg.CreateTableSQL(), "started_at TIMESTAMPTZ")

	my, _ := newMockSQLSink(t, "mysql")
	assert.Contains(t, my.InsertSQL(), "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	assert.Contains(t, my.CreateTableSQL(), "name VARCHAR(255)")

	sf, _ := newMockSQLSink(t, "snowflake")
	assert.Contains(t, sf.CreateTableSQL(), "started_at TIMESTAMP_TZ")

	alias, _ := newMockSQLSink(t, "postgres")
	assert.Equal(t, pg.InsertSQL(), alias.InsertSQL())
}

func TestSQLSinkValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = newSQLSink(db, "oracle", "", testutil.TestLogger(t))
	require.Error(t, err)

	_, err = newSQLSink(db, "pgx", "sizes; DROP TABLE users", testutil.TestLogger(t))
	require.Error(t, err)

	sink, err := newSQLSink(db, "pgx", "analytics.crm_sizes", testutil.TestLogger(t))
	require.NoError(t, err)
	assert.Contains(t, sink.InsertSQL(), "INSERT INTO analytics.crm_sizes ")
}

func TestSQLSinkEnsureTable(t *testing.T) {
	sink, mock := newMockSQLSink(t, "pgx")
	mock.ExpectExec(sink.CreateTableSQL()).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.EnsureTable(testutil.TestContext(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWrite(t *testing.T) {
	sink, mock := newMockSQLSink(t, "pgx")
	reports := sampleReports()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(sink.InsertSQL())
	prep.ExpectExec().
		WithArgs("run-1", "account", "Account", 1, int64(1200), int64(940), true, sqlmock.AnyArg(), int64(350), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("run-1", "contact", "Contact", 2, int64(5000), int64(3120), false, sqlmock.AnyArg(), int64(900), "crm fault 0x80040216: boom").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(testutil.TestContext(t), reports))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWriteRollsBack(t *testing.T) {
	sink, mock := newMockSQLSink(t, "mysql")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(sink.InsertSQL())
	prep.ExpectExec().WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := sink.Write(testutil.TestContext(t), sampleReports())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWriteEmpty(t *testing.T) {
	sink, mock := newMockSQLSink(t, "pgx")
	require.NoError(t, sink.Write(testutil.TestContext(t), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udssoftware/crmsize/pkg/compression"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/testutil"
)

func TestNewNone(t *testing.T) {
	sink, err := New(testutil.TestContext(t), config.ReportConfig{Type: "none"}, testutil.TestLogger(t))
	require.NoError(t, err)
	assert.NoError(t, sink.Write(context.Background(), sampleReports()))
	assert.NoError(t, sink.Close())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(testutil.TestContext(t), config.ReportConfig{Type: "file"}, testutil.TestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.path")

	_, err = New(testutil.TestContext(t), config.ReportConfig{Type: "ftp"}, testutil.TestLogger(t))
	require.Error(t, err)
}

func TestNewFileSinkIsInstrumented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.json")
	sink, err := New(testutil.TestContext(t), config.ReportConfig{Type: "file", Path: path}, testutil.TestLogger(t))
	require.NoError(t, err)

	_, ok := sink.(*instrumented)
	assert.True(t, ok)
	require.NoError(t, sink.Write(testutil.TestContext(t), sampleReports()))
	assert.FileExists(t, path)
}

func TestFileSink(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "sizes.csv")
		sink, err := NewFileSink(config.ReportConfig{Path: path, Format: FormatCSV}, testutil.TestLogger(t))
		require.NoError(t, err)

		require.NoError(t, sink.Write(testutil.TestContext(t), sampleReports()))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "run_id,name,display_name"))
	})

	t.Run("directory gets a file per run", func(t *testing.T) {
		dir := t.TempDir()
		sink, err := NewFileSink(config.ReportConfig{Path: dir, Format: FormatJSONL, Compression: "zstd"}, testutil.TestLogger(t))
		require.NoError(t, err)

		reports := sampleReports()
		assert.Equal(t, filepath.Join(dir, "crmsize-run-1.jsonl.zst"), sink.Target(reports))
		require.NoError(t, sink.Write(testutil.TestContext(t), reports))

		data, err := os.ReadFile(filepath.Join(dir, "crmsize-run-1.jsonl.zst"))
		require.NoError(t, err)
		plain := decompress(t, data, compression.Zstd)
		assert.Equal(t, 2, strings.Count(string(plain), "\n"))
	})

	t.Run("bad compression", func(t *testing.T) {
		_, err := NewFileSink(config.ReportConfig{Path: "x", Compression: "brotli"}, testutil.TestLogger(t))
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		sink, err := NewFileSink(config.ReportConfig{Path: filepath.Join(t.TempDir(), "r.json")}, testutil.TestLogger(t))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, sink.Write(ctx, sampleReports()), context.Canceled)
	})
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{Location: "s3://" + aws.ToString(input.Bucket) + "/" + aws.ToString(input.Key)}, nil
}

func TestS3Sink(t *testing.T) {
	uploader := &fakeUploader{}
	cfg := config.ReportConfig{Bucket: "sizes", Prefix: "crm", Format: FormatJSON}
	sink := newS3Sink(uploader, cfg, compression.Gzip, testutil.TestLogger(t))

	require.NoError(t, sink.Write(testutil.TestContext(t), sampleReports()))
	require.NoError(t, sink.Close())

	require.NotNil(t, uploader.input)
	assert.Equal(t, "sizes", aws.ToString(uploader.input.Bucket))
	assert.Equal(t, "crm/crmsize-run-1.json.gz", aws.ToString(uploader.input.Key))
	assert.Equal(t, "gzip", aws.ToString(uploader.input.ContentEncoding))
	assert.Equal(t, "application/json", aws.ToString(uploader.input.ContentType))
	assert.Equal(t, "2", uploader.input.Metadata["tables"])

	plain := decompress(t, uploader.body, compression.Gzip)
	var decoded []TableReport
	require.NoError(t, json.Unmarshal(plain, &decoded))
	assert.Len(t, decoded, 2)
}

func TestS3SinkUploadError(t *testing.T) {
	sink := newS3Sink(&fakeUploader{err: errors.New("access denied")}, config.ReportConfig{Bucket: "b"}, compression.None, testutil.TestLogger(t))

	err := sink.Write(testutil.TestContext(t), sampleReports())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

type fakeInserter struct {
	rows []bigquery.ValueSaver
	err  error
}

func (f *fakeInserter) Put(_ context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, src.([]bigquery.ValueSaver)...)
	return nil
}

func TestBigQuerySink(t *testing.T) {
	inserter := &fakeInserter{}
	sink := &BigQuerySink{inserter: inserter, table: "crm.crm_table_sizes", logger: testutil.TestLogger(t)}

	require.NoError(t, sink.Write(testutil.TestContext(t), sampleReports()))
	require.NoError(t, sink.Write(testutil.TestContext(t), nil))
	require.NoError(t, sink.Close())
	require.Len(t, inserter.rows, 2)

	row, insertID, err := inserter.rows[0].Save()
	require.NoError(t, err)
	assert.Equal(t, "run-1/account", insertID)
	assert.Equal(t, bigquery.Value(int64(1200)), row["record_count"])
	assert.NotContains(t, row, "error")

	row, _, err = inserter.rows[1].Save()
	require.NoError(t, err)
	assert.Equal(t, bigquery.Value("crm fault 0x80040216: boom"), row["error"])
}

func TestBigQuerySinkError(t *testing.T) {
	sink := &BigQuerySink{inserter: &fakeInserter{err: errors.New("quota")}, logger: testutil.TestLogger(t)}
	require.Error(t, sink.Write(testutil.TestContext(t), sampleReports()))
}

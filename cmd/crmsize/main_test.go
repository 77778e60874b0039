package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udssoftware/crmsize/pkg/estimator"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/report"
	"github.com/udssoftware/crmsize/pkg/testutil"
)

func TestEstimateCommand(t *testing.T) {
	var out bytes.Buffer
	err := execute(testutil.TestContext(t), &out, []string{"estimate", "--demo", "--log-level", "error", "--table", "account"})
	require.NoError(t, err)

	var outputs map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &outputs))
	assert.Equal(t, true, outputs["MoreRecords"])
	assert.NotEmpty(t, outputs["PagingCoockieOut"])

	var estimate estimator.SizeEstimate
	require.NoError(t, json.Unmarshal([]byte(outputs["Metrics"].(string)), &estimate))
	assert.Equal(t, "account", estimate.TableName)
	assert.Equal(t, 238, estimate.RecordCount)
}

func TestEstimateCommandFollowsCookie(t *testing.T) {
	var first bytes.Buffer
	require.NoError(t, execute(testutil.TestContext(t), &first, []string{"estimate", "--demo", "--log-level", "error", "--table", "contact"}))

	var outputs map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Bytes(), &outputs))
	cookie := outputs["PagingCoockieOut"].(string)

	var second bytes.Buffer
	require.NoError(t, execute(testutil.TestContext(t), &second,
		[]string{"estimate", "--demo", "--log-level", "error", "--table", "contact", "--page", "2", "--cookie", cookie}))
	require.NoError(t, json.Unmarshal(second.Bytes(), &outputs))
	assert.Equal(t, false, outputs["MoreRecords"])
	assert.Contains(t, outputs["Metrics"], `"RecordCount":2300`)
}

func TestEstimateCommandRequiresTable(t *testing.T) {
	err := execute(testutil.TestContext(t), &bytes.Buffer{}, []string{"estimate", "--demo"})
	require.Error(t, err)
}

func TestEstimateCommandUnknownTable(t *testing.T) {
	err := execute(testutil.TestContext(t), &bytes.Buffer{}, []string{"estimate", "--demo", "--log-level", "error", "--table", "invoice"})
	require.Error(t, err)
}

func TestScanCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "sizes.jsonl")
	configPath := filepath.Join(dir, "crmsize.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
service:
  backend: memory
scan:
  workers: 2
report:
  type: file
  format: jsonl
  path: `+reportPath+`
log:
  level: error
`), 0o600))

	var out bytes.Buffer
	err := execute(testutil.TestContext(t), &out, []string{"scan", "--config", configPath, "--tables", "account,annotation"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Account")
	assert.Contains(t, out.String(), "Total")
	assert.Contains(t, out.String(), "1260")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var r report.TableReport
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r))
	assert.Equal(t, "annotation", r.Name)
	assert.Equal(t, int64(60), r.RecordCount)
	assert.True(t, r.Complete)
}

func TestTablesCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(testutil.TestContext(t), &out, []string{"tables", "--demo", "--log-level", "error"}))
	assert.Contains(t, out.String(), "annotations")
	assert.Contains(t, out.String(), "Note")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(testutil.TestContext(t), &out, []string{"version"}))
	assert.Contains(t, out.String(), "crmsize v"+version)
}

package plugin

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/crm/memory"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/estimator"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/testutil"
)

func newPlugin(t *testing.T, rows int) (*Plugin, *memory.Store) {
	t.Helper()

	s := memory.New()
	records := make([]crm.Record, rows)
	for i := range records {
		records[i] = crm.Record{"title": strings.Repeat("t", i%7+1)}
	}
	s.AddTable(crm.Table{
		LogicalName: "incident",
		DisplayName: "Case",
		Columns: []crm.Column{
			{LogicalName: "title", SchemaName: "Title", Type: crm.AttributeString, IsRetrievable: true, MaxLength: testutil.IntPtr(6000)},
			{LogicalName: "incidentid", SchemaName: "IncidentId", Type: crm.AttributeUniqueidentifier, IsRetrievable: true},
		},
	}, records...)

	log := testutil.TestLogger(t)
	return New(estimator.New(s, s, log), log), s
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      ParameterCollection
		want    Request
		wantErr bool
	}{
		{name: "table only", in: ParameterCollection{"Table": "account"}, want: Request{Table: "account"}},
		{name: "zero page", in: ParameterCollection{"Table": "account", "Page": 0}, want: Request{Table: "account"}},
		{name: "negative page", in: ParameterCollection{"Table": "account", "Page": int32(-4)}, want: Request{Table: "account", Page: -4}},
		{name: "float page", in: ParameterCollection{"Table": "account", "Page": float64(3)}, want: Request{Table: "account", Page: 3}},
		{name: "json number page", in: ParameterCollection{"Table": "account", "Page": json.Number("7")}, want: Request{Table: "account", Page: 7}},
		{name: "cookie", in: ParameterCollection{"Table": "account", "Page": int64(2), "PagingCoockieIn": "abc"}, want: Request{Table: "account", Page: 2, PagingCookieIn: "abc"}},
		{name: "nil cookie", in: ParameterCollection{"Table": "account", "PagingCoockieIn": nil}, want: Request{Table: "account"}},
		{name: "missing table", in: ParameterCollection{}, wantErr: true},
		{name: "empty table", in: ParameterCollection{"Table": ""}, wantErr: true},
		{name: "table wrong type", in: ParameterCollection{"Table": 12}, wantErr: true},
		{name: "fractional page", in: ParameterCollection{"Table": "a", "Page": 1.5}, wantErr: true},
		{name: "page wrong type", in: ParameterCollection{"Table": "a", "Page": "2"}, wantErr: true},
		{name: "float page beyond int", in: ParameterCollection{"Table": "a", "Page": 1e19}, wantErr: true},
		{name: "float page at 2^63", in: ParameterCollection{"Table": "a", "Page": float64(math.MaxInt64)}, wantErr: true},
		{name: "float page below int", in: ParameterCollection{"Table": "a", "Page": -1e19}, wantErr: true},
		{name: "infinite page", in: ParameterCollection{"Table": "a", "Page": math.Inf(1)}, wantErr: true},
		{name: "nan page", in: ParameterCollection{"Table": "a", "Page": math.NaN()}, wantErr: true},
		{name: "json number beyond int64", in: ParameterCollection{"Table": "a", "Page": json.Number("9223372036854775808")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteRoundTripsCookie(t *testing.T) {
	p, _ := newPlugin(t, 40)
	ctx := testutil.TestContext(t)

	first := &ExecutionContext{InputParameters: ParameterCollection{"Table": "incident"}}
	require.NoError(t, p.Execute(ctx, first))
	assert.NotEmpty(t, first.InvocationID)
	assert.Equal(t, true, first.OutputParameters[OutputMoreRecords])

	cookie, ok := first.OutputParameters[OutputPagingCookie].(string)
	require.True(t, ok)

	var m estimator.SizeEstimate
	require.NoError(t, json.Unmarshal([]byte(first.OutputParameters[OutputMetrics].(string)), &m))
	assert.Equal(t, 25, m.RecordCount)
	assert.Equal(t, "Case", m.DisplayName)

	second := &ExecutionContext{InputParameters: ParameterCollection{
		"Table":           "incident",
		"Page":            2,
		"PagingCoockieIn": cookie,
	}}
	require.NoError(t, p.Execute(ctx, second))
	assert.Equal(t, false, second.OutputParameters[OutputMoreRecords])

	require.NoError(t, json.Unmarshal([]byte(second.OutputParameters[OutputMetrics].(string)), &m))
	assert.Equal(t, 15, m.RecordCount)
}

func TestRunNonPositivePageReadsFirstPage(t *testing.T) {
	p, _ := newPlugin(t, 40)
	ctx := testutil.TestContext(t)

	first, err := p.Run(ctx, Request{Table: "incident", Page: 1})
	require.NoError(t, err)

	for _, page := range []int{0, -3} {
		resp, err := p.Run(ctx, Request{Table: "incident", Page: page})
		require.NoError(t, err)
		assert.Equal(t, first.Estimate, resp.Estimate)
		assert.Equal(t, first.MoreRecords, resp.MoreRecords)
		assert.Equal(t, first.PagingCookieOut, resp.PagingCookieOut)
	}
}

func TestMetricsWireNames(t *testing.T) {
	p, _ := newPlugin(t, 3)

	resp, err := p.Run(context.Background(), Request{Table: "incident"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resp.Metrics), &raw))
	assert.Equal(t, "incident", raw["Name"])
	assert.Equal(t, "Case", raw["DisplayName"])
	assert.EqualValues(t, 3, raw["RecordCount"])
	assert.EqualValues(t, 0, raw["Size"])
}

func TestExecuteEmptyPageHasNilCookie(t *testing.T) {
	p, _ := newPlugin(t, 0)

	exec := &ExecutionContext{InputParameters: ParameterCollection{"Table": "incident"}}
	require.NoError(t, p.Execute(context.Background(), exec))

	assert.Contains(t, exec.OutputParameters, OutputPagingCookie)
	assert.Nil(t, exec.OutputParameters[OutputPagingCookie])
	assert.Equal(t, false, exec.OutputParameters[OutputMoreRecords])
}

func TestExecuteFailures(t *testing.T) {
	p, s := newPlugin(t, 5)

	exec := &ExecutionContext{InputParameters: ParameterCollection{}}
	err := p.Execute(context.Background(), exec)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Empty(t, exec.OutputParameters)

	fault := &crm.Fault{Code: -2147204784, Message: "privilege"}
	require.NoError(t, s.FailNextPage("incident", fault))
	exec = &ExecutionContext{InputParameters: ParameterCollection{"Table": "incident"}}
	assert.Same(t, fault, p.Execute(context.Background(), exec))
	assert.Empty(t, exec.OutputParameters)
}

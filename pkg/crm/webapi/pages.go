package webapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

const preferAnnotations = `odata.include-annotations="Microsoft.Dynamics.CRM.fetchxmlpagingcookie,Microsoft.Dynamics.CRM.morerecords"`

type pageResponse struct {
	Value        []map[string]interface{} `json:"value"`
	PagingCookie string                   `json:"@Microsoft.Dynamics.CRM.fetchxmlpagingcookie"`
	MoreRecords  bool                     `json:"@Microsoft.Dynamics.CRM.morerecords"`
}

// FetchPage runs one page of a FetchXML query. With no columns requested
// only the primary key is selected, so rows are counted without payload.
func (c *Client) FetchPage(ctx context.Context, req crm.PageRequest) (*crm.PageResult, error) {
	if req.PageSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "page size must be positive, got %d", req.PageSize)
	}

	ref, err := c.resolve(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	columns := req.Columns
	if len(columns) == 0 && ref.primaryID != "" {
		columns = []string{ref.primaryID}
	}

	fetchXML, err := BuildFetchXML(req.Table, columns, max(req.PageNumber, 1), req.PageSize, req.PagingCookie, ref.primaryID)
	if err != nil {
		return nil, err
	}

	var resp pageResponse
	err = c.get(ctx, "page", url.PathEscape(ref.entitySet), url.Values{"fetchXml": {fetchXML}},
		http.Header{"Prefer": {preferAnnotations}}, &resp)
	if err != nil {
		return nil, err
	}

	cookie, err := ParsePagingCookie(resp.PagingCookie)
	if err != nil {
		return nil, err
	}

	result := &crm.PageResult{
		Records:      make([]crm.Record, 0, len(resp.Value)),
		PagingCookie: cookie,
		MoreRecords:  resp.MoreRecords,
	}
	for _, row := range resp.Value {
		result.Records = append(result.Records, toRecord(row, req.Columns))
	}

	c.logger.Debug("fetched page",
		zap.String("table", req.Table),
		zap.Int("page", req.PageNumber),
		zap.Int("records", len(result.Records)),
		zap.Bool("more_records", result.MoreRecords))

	return result, nil
}

// toRecord keeps the requested columns; JSON null and absent values are
// left out of the record
func toRecord(row map[string]interface{}, columns []string) crm.Record {
	rec := make(crm.Record, len(columns))
	for _, c := range columns {
		switch v := row[c].(type) {
		case nil:
		case string:
			rec[c] = v
		case json.Number:
			rec[c] = v.String()
		default:
			rec[c] = fmt.Sprint(v)
		}
	}
	return rec
}

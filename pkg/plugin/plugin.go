// Package plugin adapts the estimator to the CRM plugin contract: named
// input parameters in, named output parameters out. Parameter names,
// including the historical "Coockie" spelling, are part of the contract.
package plugin

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/estimator"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/logger"
)

// Parameter names
const (
	InputTable         = "Table"
	InputPage          = "Page"
	InputPagingCookie  = "PagingCoockieIn"
	OutputPagingCookie = "PagingCoockieOut"
	OutputMoreRecords  = "MoreRecords"
	OutputMetrics      = "Metrics"
)

// Request is the typed form of the input parameters
type Request struct {
	Table          string `json:"Table"`
	Page           int    `json:"Page,omitempty"`
	PagingCookieIn string `json:"PagingCoockieIn,omitempty"`
}

// Response is the typed form of the output parameters
type Response struct {
	// PagingCookieOut is nil when the page carried no cookie
	PagingCookieOut *string `json:"PagingCoockieOut"`
	MoreRecords     bool    `json:"MoreRecords"`
	// Metrics is the JSON encoded estimator.SizeEstimate
	Metrics string `json:"Metrics"`

	Estimate estimator.SizeEstimate `json:"-"`
}

// ExecutionContext carries one invocation's parameters
type ExecutionContext struct {
	InvocationID     string
	InputParameters  ParameterCollection
	OutputParameters ParameterCollection
}

// Plugin runs the estimator for host invocations
type Plugin struct {
	estimator *estimator.Estimator
	logger    *zap.Logger
}

// New creates a plugin
func New(est *estimator.Estimator, log *zap.Logger) *Plugin {
	if log == nil {
		log = logger.Get()
	}
	return &Plugin{
		estimator: est,
		logger:    log.With(zap.String("component", "plugin")),
	}
}

// DecodeRequest reads the input parameters. Table is required; a missing
// Page is left at zero and resolved to the first page by the estimator.
func DecodeRequest(in ParameterCollection) (Request, error) {
	var req Request

	table, ok, err := in.String(InputTable)
	if err != nil {
		return req, err
	}
	if !ok || table == "" {
		return req, errors.New(errors.ErrorTypeValidation, "input parameter Table is required").
			WithDetail("parameter", InputTable)
	}
	req.Table = table

	page, ok, err := in.Int(InputPage)
	if err != nil {
		return req, err
	}
	if ok {
		req.Page = page
	}

	req.PagingCookieIn, _, err = in.String(InputPagingCookie)
	if err != nil {
		return req, err
	}
	return req, nil
}

// Encode writes the response into the output parameters
func (r *Response) Encode(out ParameterCollection) {
	if r.PagingCookieOut != nil {
		out[OutputPagingCookie] = *r.PagingCookieOut
	} else {
		out[OutputPagingCookie] = nil
	}
	out[OutputMoreRecords] = r.MoreRecords
	out[OutputMetrics] = r.Metrics
}

// Run estimates one page for a typed request
func (p *Plugin) Run(ctx context.Context, req Request) (*Response, error) {
	res, err := p.estimator.Estimate(ctx, estimator.Request{
		Table:        req.Table,
		Page:         req.Page,
		PagingCookie: req.PagingCookieIn,
	})
	if err != nil {
		return nil, err
	}

	metricsJSON, err := json.MarshalString(res.Estimate)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode metrics")
	}

	resp := &Response{
		MoreRecords: res.MoreRecords,
		Metrics:     metricsJSON,
		Estimate:    res.Estimate,
	}
	if res.PagingCookie != "" {
		cookie := res.PagingCookie
		resp.PagingCookieOut = &cookie
	}
	return resp, nil
}

// Execute runs one host invocation, reading InputParameters and filling
// OutputParameters. Output parameters are left untouched on failure.
func (p *Plugin) Execute(ctx context.Context, exec *ExecutionContext) error {
	if exec.InvocationID == "" {
		exec.InvocationID = uuid.NewString()
	}
	if exec.OutputParameters == nil {
		exec.OutputParameters = make(ParameterCollection)
	}

	ctx = context.WithValue(ctx, logger.InvocationIDKey, exec.InvocationID)
	log := logger.FromContext(ctx, p.logger)

	req, err := DecodeRequest(exec.InputParameters)
	if err != nil {
		log.Warn("rejected invocation", zap.Error(err))
		return err
	}

	resp, err := p.Run(ctx, req)
	if err != nil {
		log.Error("invocation failed", zap.String("table", req.Table), zap.Error(err))
		return err
	}

	resp.Encode(exec.OutputParameters)
	return nil
}

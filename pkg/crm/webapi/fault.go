package webapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

const maxErrorBody = 64 << 10

type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeFault turns an error response into a *crm.Fault when the body
// carries an OData error with a numeric code, or a typed error otherwise.
func decodeFault(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read error response")
	}

	var oe odataError
	if json.Unmarshal(body, &oe) == nil && oe.Error.Code != "" {
		if code, err := crm.ParseFaultCode(oe.Error.Code); err == nil {
			return &crm.Fault{
				Code:       code,
				Message:    oe.Error.Message,
				StatusCode: resp.StatusCode,
			}
		}
	}

	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	if oe.Error.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, oe.Error.Message)
	}

	errType := errors.ErrorTypeQuery
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	}
	return errors.New(errType, msg).WithDetail("status", resp.StatusCode)
}

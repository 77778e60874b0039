package plugin

import (
	"math"

	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

// ParameterCollection is a host's named parameter map
type ParameterCollection map[string]interface{}

// String returns a string parameter. A missing or nil parameter yields ok=false.
func (p ParameterCollection) String(name string) (value string, ok bool, err error) {
	raw, present := p[name]
	if !present || raw == nil {
		return "", false, nil
	}

	switch v := raw.(type) {
	case string:
		return v, true, nil
	case *string:
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	default:
		return "", false, typeError(name, "string", raw)
	}
}

// Int returns an integer parameter. Hosts that decode JSON hand numbers over
// as float64 or json.Number, so integral values of those are accepted too.
func (p ParameterCollection) Int(name string) (value int, ok bool, err error) {
	raw, present := p[name]
	if !present || raw == nil {
		return 0, false, nil
	}

	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, false, typeError(name, "integer", raw)
		}
		return int(v), true, nil
	case float64:
		// float64(math.MaxInt) rounds up to 2^63 on 64-bit, which is out of range
		if v != math.Trunc(v) || v < float64(math.MinInt) || v >= -float64(math.MinInt) {
			return 0, false, typeError(name, "integer", raw)
		}
		return int(v), true, nil
	case json.Number:
		n, convErr := v.Int64()
		if convErr != nil || n < math.MinInt || n > math.MaxInt {
			return 0, false, typeError(name, "integer", raw)
		}
		return int(n), true, nil
	default:
		return 0, false, typeError(name, "integer", raw)
	}
}

func typeError(name, want string, got interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation, "input parameter %s must be %s, got %T", name, want, got).
		WithDetail("parameter", name)
}

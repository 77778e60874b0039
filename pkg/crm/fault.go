package crm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Provider fault codes
const (
	// FaultCodeOutOfRange (0x80040800) is raised when paging runs past the
	// records the query can return.
	FaultCodeOutOfRange int32 = -2147219456
	// FaultCodeTransient (0x80040219) is raised when the paging state of a
	// query is no longer valid.
	FaultCodeTransient int32 = -2147220967
	// FaultCodeObjectNotFound (0x80040217) is raised for unknown tables
	FaultCodeObjectNotFound int32 = -2147220969
)

// benignFaultCodes are pagination faults that mean "no page here"
var benignFaultCodes = map[int32]struct{}{
	FaultCodeOutOfRange: {},
	FaultCodeTransient:  {},
}

// Fault is an error reported by the CRM platform
type Fault struct {
	Code    int32
	Message string
	// StatusCode is the HTTP status the fault arrived with, 0 when not over HTTP
	StatusCode int
}

// Error implements the error interface
func (f *Fault) Error() string {
	return fmt.Sprintf("crm fault %s: %s", f.HexCode(), f.Message)
}

// HexCode renders the code the way the platform prints it, e.g. 0x80040800
func (f *Fault) HexCode() string {
	return fmt.Sprintf("0x%08x", uint32(f.Code))
}

// IsBenign reports whether the fault is a recognised pagination fault
func (f *Fault) IsBenign() bool {
	_, ok := benignFaultCodes[f.Code]
	return ok
}

// AsBenignFault returns the pagination fault in err's chain, if any
func AsBenignFault(err error) (*Fault, bool) {
	var f *Fault
	if !errors.As(err, &f) || !f.IsBenign() {
		return nil, false
	}
	return f, true
}

// ParseFaultCode accepts a hexadecimal code ("0x80040800") or a signed
// decimal one ("-2147219456").
func ParseFaultCode(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid fault code %q: %w", s, err)
		}
		return int32(uint32(v)), nil
	}

	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fault code %q: %w", s, err)
	}
	return int32(v), nil
}

// Package errors provides examples of structured error handling in crmsize.
package errors_test

import (
	"fmt"
	"io"

	"github.com/udssoftware/crmsize/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeValidation, "input parameter Table is required").
		WithDetail("parameter", "Table")

	fmt.Println(err.Error())

	// Output:
	// validation: input parameter Table is required
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeData, "failed to decode page").
		WithDetail("table", "account")

	if errors.IsType(err, errors.ErrorTypeData) {
		fmt.Println("This is a data error")
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Cause is preserved")
	}

	// Output:
	// This is a data error
	// Cause is preserved
}

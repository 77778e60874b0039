package crm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxLengthFor(t *testing.T) {
	n := 4000
	tests := []struct {
		name   string
		column Column
		want   int
		wantOK bool
	}{
		{name: "string with length", column: Column{Type: AttributeString, MaxLength: &n}, want: 4000, wantOK: true},
		{name: "memo with length", column: Column{Type: AttributeMemo, MaxLength: &n}, want: 4000, wantOK: true},
		{name: "string without length", column: Column{Type: AttributeString}},
		{name: "integer ignores length", column: Column{Type: AttributeInteger, MaxLength: &n}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MaxLengthFor(tt.column)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSchemaNameIs(t *testing.T) {
	assert.True(t, Column{SchemaName: "DocumentBody"}.SchemaNameIs("documentbody"))
	assert.False(t, Column{SchemaName: "Subject"}.SchemaNameIs("body"))
}

func TestFaultCodes(t *testing.T) {
	f := &Fault{Code: FaultCodeOutOfRange, Message: "paging"}
	assert.Equal(t, "0x80040800", f.HexCode())
	assert.True(t, f.IsBenign())
	assert.Equal(t, "crm fault 0x80040800: paging", f.Error())

	assert.Equal(t, "0x80040219", (&Fault{Code: FaultCodeTransient}).HexCode())
	assert.False(t, (&Fault{Code: FaultCodeObjectNotFound}).IsBenign())
}

func TestAsBenignFault(t *testing.T) {
	wrapped := fmt.Errorf("fetch page: %w", &Fault{Code: FaultCodeTransient})
	f, ok := AsBenignFault(wrapped)
	require.True(t, ok)
	assert.Equal(t, FaultCodeTransient, f.Code)

	_, ok = AsBenignFault(&Fault{Code: -1})
	assert.False(t, ok)

	_, ok = AsBenignFault(errors.New("plain"))
	assert.False(t, ok)
}

func TestParseFaultCode(t *testing.T) {
	tests := []struct {
		in      string
		want    int32
		wantErr bool
	}{
		{in: "0x80040800", want: FaultCodeOutOfRange},
		{in: "0X80040219", want: FaultCodeTransient},
		{in: "-2147219456", want: FaultCodeOutOfRange},
		{in: "42", want: 42},
		{in: "0xZZ", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFaultCode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

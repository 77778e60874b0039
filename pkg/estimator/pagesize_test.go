package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageSize(t *testing.T) {
	tests := []struct {
		name      string
		maxLength int64
		want      int
	}{
		{name: "zero", maxLength: 0, want: 5000},
		{name: "narrow", maxLength: 500, want: 5000},
		{name: "lower bound excluded", maxLength: 1000, want: 5000},
		{name: "just above lower bound", maxLength: 1001, want: 500},
		{name: "medium", maxLength: 2500, want: 200},
		{name: "rounds down", maxLength: 2100, want: 238},
		{name: "rounds up", maxLength: 3000, want: 167},
		{name: "tie rounds to even", maxLength: 1650, want: 312},
		{name: "upper bound excluded", maxLength: 5000, want: 5000},
		{name: "wide", maxLength: 6000, want: 25},
		{name: "huge", maxLength: 1 << 40, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageSize(tt.maxLength))
		})
	}
}

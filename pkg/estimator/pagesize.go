package estimator

import "math"

const (
	// DefaultPageSize is the largest page the platform returns
	DefaultPageSize = 5000
	// MinPageSize is used when the measured columns are very wide
	MinPageSize = 25

	narrowThreshold = 1000
	wideThreshold   = 5000
)

// PageSize picks how many rows to request so that wide text columns do not
// produce oversized pages. maxLength is the summed declared length of the
// measured columns.
func PageSize(maxLength int64) int {
	switch {
	case maxLength > narrowThreshold && maxLength < wideThreshold:
		hundreds := maxLength / 100
		if hundreds == 0 {
			return DefaultPageSize
		}
		return int(math.RoundToEven(float64(DefaultPageSize) / float64(hundreds)))
	case maxLength > wideThreshold:
		return MinPageSize
	default:
		return DefaultPageSize
	}
}

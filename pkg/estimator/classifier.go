package estimator

import "github.com/udssoftware/crmsize/pkg/crm"

// fixedWidth is the per-row storage cost of fixed-width column types.
// Types absent from the table cost nothing.
var fixedWidth = map[crm.AttributeType]int{
	crm.AttributeCustomer:         16,
	crm.AttributeLookup:           16,
	crm.AttributeOwner:            16,
	crm.AttributeUniqueidentifier: 16,
	crm.AttributeBigInt:           8,
	crm.AttributeDateTime:         8,
	crm.AttributeInteger:          4,
	crm.AttributePicklist:         4,
	crm.AttributeState:            4,
	crm.AttributeStatus:           4,
	crm.AttributeDecimal:          13,
	crm.AttributeDouble:           8,
	crm.AttributeMoney:            8,
}

// Schema names of variable-width columns that are measured even when the
// platform marks them as not retrievable.
var alwaysMeasured = []string{"documentbody", "body"}

// Classification is the per-row cost model of a table
type Classification struct {
	BooleanCount int
	// FixedRowBytes includes the packed boolean bytes
	FixedRowBytes int
	// VariableColumns are the string and memo columns to measure, in metadata order
	VariableColumns []string
	// VariableMaxLength sums the declared maximum lengths of VariableColumns
	VariableMaxLength int64
}

// Classify builds the cost model of a table from its column metadata
func Classify(columns []crm.Column) Classification {
	var c Classification

	for _, col := range columns {
		switch col.Type {
		case crm.AttributeBoolean:
			c.BooleanCount++
		case crm.AttributeString, crm.AttributeMemo:
			if !isMeasured(col) {
				continue
			}
			c.VariableColumns = append(c.VariableColumns, col.LogicalName)
			if n, ok := crm.MaxLengthFor(col); ok {
				c.VariableMaxLength += int64(n)
			}
		default:
			c.FixedRowBytes += fixedWidth[col.Type]
		}
	}

	c.FixedRowBytes += PackedBooleanBytes(c.BooleanCount)
	return c
}

// PackedBooleanBytes is the storage of n booleans packed eight to a byte.
// Zero booleans still occupy one byte.
func PackedBooleanBytes(n int) int {
	return 1 + (n-1)/8
}

func isMeasured(col crm.Column) bool {
	if col.IsRetrievable {
		return true
	}
	for _, name := range alwaysMeasured {
		if col.SchemaNameIs(name) {
			return true
		}
	}
	return false
}

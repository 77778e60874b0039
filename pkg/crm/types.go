// Package crm models the CRM platform as seen by the size estimator: table
// and column metadata, paged record queries and provider faults. The
// platform itself is an external service reached through MetadataService
// and QueryService; pkg/crm/webapi and pkg/crm/memory implement them.
package crm

import (
	"context"
	"strings"
)

// AttributeType is a column type code, named as the CRM reports it
type AttributeType string

// Attribute type codes
const (
	AttributeBigInt           AttributeType = "BigInt"
	AttributeBoolean          AttributeType = "Boolean"
	AttributeCalendarRules    AttributeType = "CalendarRules"
	AttributeCustomer         AttributeType = "Customer"
	AttributeDateTime         AttributeType = "DateTime"
	AttributeDecimal          AttributeType = "Decimal"
	AttributeDouble           AttributeType = "Double"
	AttributeEntityName       AttributeType = "EntityName"
	AttributeInteger          AttributeType = "Integer"
	AttributeLookup           AttributeType = "Lookup"
	AttributeManagedProperty  AttributeType = "ManagedProperty"
	AttributeMemo             AttributeType = "Memo"
	AttributeMoney            AttributeType = "Money"
	AttributeOwner            AttributeType = "Owner"
	AttributePartyList        AttributeType = "PartyList"
	AttributePicklist         AttributeType = "Picklist"
	AttributeState            AttributeType = "State"
	AttributeStatus           AttributeType = "Status"
	AttributeString           AttributeType = "String"
	AttributeUniqueidentifier AttributeType = "Uniqueidentifier"
	AttributeVirtual          AttributeType = "Virtual"
)

// HasMaxLength reports whether columns of this type declare a maximum length
func (t AttributeType) HasMaxLength() bool {
	return t == AttributeString || t == AttributeMemo
}

// Column describes one attribute of a table
type Column struct {
	LogicalName   string
	SchemaName    string
	Type          AttributeType
	IsRetrievable bool
	// MaxLength is only populated for string and memo columns, nil when undeclared
	MaxLength *int
}

// MaxLengthFor returns the declared maximum length of a string or memo
// column. ok is false for every other type and for undeclared lengths.
func MaxLengthFor(c Column) (length int, ok bool) {
	if !c.Type.HasMaxLength() || c.MaxLength == nil {
		return 0, false
	}
	return *c.MaxLength, true
}

// SchemaNameIs compares the column's schema name case-insensitively
func (c Column) SchemaNameIs(name string) bool {
	return strings.EqualFold(c.SchemaName, name)
}

// Table is the metadata of one table
type Table struct {
	LogicalName        string
	EntitySetName      string
	PrimaryIDAttribute string
	// DisplayName is the user localized label, empty when the table has none
	DisplayName string
	Columns     []Column
}

// TableInfo is one entry of a table listing
type TableInfo struct {
	LogicalName   string `json:"logical_name"`
	EntitySetName string `json:"entity_set_name"`
	DisplayName   string `json:"display_name"`
}

// PageRequest asks for one page of a table
type PageRequest struct {
	Table      string
	PageNumber int
	// PagingCookie is the opaque token of the previous page, empty for none
	PagingCookie string
	PageSize     int
	// Columns lists the columns to return; only variable-width columns are requested
	Columns []string
}

// Record maps a column name to its string value. A missing key is null.
type Record map[string]string

// PageResult is one page of records
type PageResult struct {
	Records []Record
	// PagingCookie continues the query on the next invocation, empty for none
	PagingCookie string
	MoreRecords  bool
}

// EmptyPage returns a page with no rows, no cookie and no more records
func EmptyPage() *PageResult {
	return &PageResult{}
}

// MetadataService retrieves table metadata
type MetadataService interface {
	FetchMetadata(ctx context.Context, table string) (*Table, error)
}

// QueryService retrieves pages of records
type QueryService interface {
	FetchPage(ctx context.Context, req PageRequest) (*PageResult, error)
}

// Service is a CRM backend offering both capabilities
type Service interface {
	MetadataService
	QueryService
}

// TableLister is implemented by backends that can enumerate tables
type TableLister interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
}

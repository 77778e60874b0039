package memory

import (
	"fmt"
	"strings"

	"github.com/udssoftware/crmsize/pkg/crm"
)

// NewDemo returns a store seeded with an account, a contact and an
// annotation table, enough to exercise every column class.
func NewDemo() *Store {
	s := New()

	name, desc, body := 160, 2000, 1048576
	s.AddTable(crm.Table{
		LogicalName:   "account",
		EntitySetName: "accounts",
		DisplayName:   "Account",
		Columns: []crm.Column{
			{LogicalName: "accountid", SchemaName: "AccountId", Type: crm.AttributeUniqueidentifier, IsRetrievable: true},
			{LogicalName: "name", SchemaName: "Name", Type: crm.AttributeString, IsRetrievable: true, MaxLength: &name},
			{LogicalName: "description", SchemaName: "Description", Type: crm.AttributeMemo, IsRetrievable: true, MaxLength: &desc},
			{LogicalName: "ownerid", SchemaName: "OwnerId", Type: crm.AttributeOwner, IsRetrievable: true},
			{LogicalName: "revenue", SchemaName: "Revenue", Type: crm.AttributeMoney, IsRetrievable: true},
			{LogicalName: "numberofemployees", SchemaName: "NumberOfEmployees", Type: crm.AttributeInteger, IsRetrievable: true},
			{LogicalName: "createdon", SchemaName: "CreatedOn", Type: crm.AttributeDateTime, IsRetrievable: true},
			{LogicalName: "donotemail", SchemaName: "DoNotEMail", Type: crm.AttributeBoolean, IsRetrievable: true},
			{LogicalName: "donotphone", SchemaName: "DoNotPhone", Type: crm.AttributeBoolean, IsRetrievable: true},
			{LogicalName: "statecode", SchemaName: "StateCode", Type: crm.AttributeState, IsRetrievable: true},
		},
	}, demoRows(1200, func(i int) crm.Record {
		r := crm.Record{"name": fmt.Sprintf("Account %04d", i)}
		if i%3 == 0 {
			r["description"] = strings.Repeat("Key customer. ", i%20+1)
		}
		return r
	})...)

	first, last := 50, 50
	s.AddTable(crm.Table{
		LogicalName:   "contact",
		EntitySetName: "contacts",
		DisplayName:   "Contact",
		Columns: []crm.Column{
			{LogicalName: "contactid", SchemaName: "ContactId", Type: crm.AttributeUniqueidentifier, IsRetrievable: true},
			{LogicalName: "firstname", SchemaName: "FirstName", Type: crm.AttributeString, IsRetrievable: true, MaxLength: &first},
			{LogicalName: "lastname", SchemaName: "LastName", Type: crm.AttributeString, IsRetrievable: true, MaxLength: &last},
			{LogicalName: "parentcustomerid", SchemaName: "ParentCustomerId", Type: crm.AttributeCustomer, IsRetrievable: true},
			{LogicalName: "birthdate", SchemaName: "BirthDate", Type: crm.AttributeDateTime, IsRetrievable: true},
		},
	}, demoRows(7300, func(i int) crm.Record {
		return crm.Record{
			"firstname": fmt.Sprintf("First%d", i),
			"lastname":  fmt.Sprintf("Last%d", i),
		}
	})...)

	s.AddTable(crm.Table{
		LogicalName:   "annotation",
		EntitySetName: "annotations",
		DisplayName:   "Note",
		Columns: []crm.Column{
			{LogicalName: "annotationid", SchemaName: "AnnotationId", Type: crm.AttributeUniqueidentifier, IsRetrievable: true},
			{LogicalName: "subject", SchemaName: "Subject", Type: crm.AttributeString, IsRetrievable: true, MaxLength: &name},
			{LogicalName: "documentbody", SchemaName: "DocumentBody", Type: crm.AttributeMemo, MaxLength: &body},
			{LogicalName: "isdocument", SchemaName: "IsDocument", Type: crm.AttributeBoolean, IsRetrievable: true},
		},
	}, demoRows(60, func(i int) crm.Record {
		return crm.Record{
			"subject":      fmt.Sprintf("Attachment %d", i),
			"documentbody": strings.Repeat("QUJD", 256*(i%4+1)),
		}
	})...)

	return s
}

func demoRows(n int, gen func(i int) crm.Record) []crm.Record {
	rows := make([]crm.Record, n)
	for i := range rows {
		rows[i] = gen(i)
	}
	return rows
}

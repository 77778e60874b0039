// Package crmsize estimates the storage footprint of CRM tables.
//
// An estimation runs one page at a time. For a table it reads the column
// metadata, classifies every column as fixed-width (counted in bytes per
// row, booleans packed eight to a byte) or variable-width (string and memo
// text), picks a page size that keeps the variable text of one page
// bounded, and reads a single page of records. The page's record count
// and an estimated size in kilobytes are returned together with the paging
// state the caller feeds back to get the next page.
//
// # Architecture
//
//   - pkg/crm: the CRM model (tables, columns, pages, faults) and the two
//     collaborator interfaces, with a Web API backend (pkg/crm/webapi) and
//     an in-memory backend (pkg/crm/memory)
//   - pkg/estimator: column classification, page sizing and the per-page
//     estimate
//   - pkg/plugin: the named-parameter plugin contract (Table, Page,
//     PagingCoockieIn in; PagingCoockieOut, MoreRecords, Metrics out)
//   - internal/scanner: pages whole tables in parallel
//   - pkg/report: delivers scan results to files, object storage,
//     warehouses, SQL databases or Kafka
//   - cmd/crmsize: the command line
//
// # Quick Start
//
//	store := memory.NewDemo()
//	p := plugin.New(estimator.New(store, store, logger), logger)
//
//	resp, err := p.Run(ctx, plugin.Request{Table: "account", Page: 1})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Metrics, resp.MoreRecords)
//
// # Command Line
//
//	crmsize estimate --table account --page 1
//	crmsize scan --tables account,contact --max-pages 100
//	crmsize tables
//
// Configuration is read from a YAML file (--config), CRMSIZE_* environment
// variables and flags, in increasing order of precedence.
package crmsize

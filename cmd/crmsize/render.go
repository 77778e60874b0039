package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/report"
)

func newTableWriter(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	return t
}

// renderReports prints one row per scanned table and a totals footer
func renderReports(out io.Writer, reports []report.TableReport) error {
	t := newTableWriter(out)
	t.AppendHeader(table.Row{"Table", "Display name", "Pages", "Records", "Size (KB)", "Complete", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})

	var pages int
	var records, kb int64
	for _, r := range reports {
		t.AppendRow(table.Row{r.Name, r.DisplayName, r.Pages, r.RecordCount, r.SizeKB, r.Complete, r.Error})
		pages += r.Pages
		records += r.RecordCount
		kb += r.SizeKB
	}
	t.AppendFooter(table.Row{"Total", "", pages, records, kb, "", ""})
	t.Render()
	return nil
}

// renderTables prints the table list
func renderTables(out io.Writer, tables []crm.TableInfo) error {
	t := newTableWriter(out)
	t.AppendHeader(table.Row{"Logical name", "Entity set", "Display name"})
	for _, info := range tables {
		t.AppendRow(table.Row{info.LogicalName, info.EntitySetName, info.DisplayName})
	}
	t.Render()
	return nil
}

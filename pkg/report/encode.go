package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/udssoftware/crmsize/pkg/compression"
	"github.com/udssoftware/crmsize/pkg/json"
)

// Formats
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{
	"run_id", "name", "display_name", "pages", "record_count", "size_kb",
	"complete", "started_at", "duration_ms", "error",
}

// Encode writes reports to w in the given format
func Encode(w io.Writer, format string, reports []TableReport) error {
	switch format {
	case FormatJSON, "":
		if reports == nil {
			reports = []TableReport{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case FormatJSONL:
		data, err := json.MarshalLines(reports)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range reports {
			if err := cw.Write(csvRow(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// EncodeCompressed encodes reports through the compression codec
func EncodeCompressed(w io.Writer, format string, algo compression.Algorithm, reports []TableReport) error {
	cw, err := compression.NewWriter(w, algo)
	if err != nil {
		return err
	}
	if err := Encode(cw, format, reports); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func csvRow(r TableReport) []string {
	return []string{
		r.RunID,
		r.Name,
		r.DisplayName,
		strconv.Itoa(r.Pages),
		strconv.FormatInt(r.RecordCount, 10),
		strconv.FormatInt(r.SizeKB, 10),
		strconv.FormatBool(r.Complete),
		r.StartedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(r.DurationMS, 10),
		r.Error,
	}
}

// ObjectName names the object a run is written to, e.g.
// reports/crmsize-<run>.jsonl.gz
func ObjectName(prefix, runID, format string, algo compression.Algorithm) string {
	if format == "" {
		format = FormatJSON
	}
	name := fmt.Sprintf("crmsize-%s.%s%s", runID, format, algo.Extension())
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// ContentType returns the MIME type of an encoded report
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

func runIDOf(reports []TableReport) string {
	for _, r := range reports {
		if r.RunID != "" {
			return r.RunID
		}
	}
	return time.Now().UTC().Format("20060102T150405Z")
}

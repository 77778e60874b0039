// Package memory is an in-process CRM backend. Tables, rows and faults are
// registered up front; paging behaves like the platform's FetchXML paging,
// including an opaque cookie that resumes after the last returned record.
package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/udssoftware/crmsize/pkg/crm"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

// Store implements crm.Service and crm.TableLister
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	// calls counts FetchPage invocations per table
	calls map[string]int
}

type table struct {
	meta          crm.Table
	rows          []crm.Record
	pageFaults    []error
	metadataFault error
}

// cookie is the decoded form of the paging cookie handed to callers
type cookie struct {
	Table  string `json:"t"`
	Offset int    `json:"o"`
}

var (
	_ crm.Service     = (*Store)(nil)
	_ crm.TableLister = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		calls:  make(map[string]int),
	}
}

// AddTable registers a table with its rows, replacing any previous definition
func (s *Store) AddTable(meta crm.Table, rows ...crm.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(meta.LogicalName)
	if meta.EntitySetName == "" {
		meta.EntitySetName = key + "s"
	}
	s.tables[key] = &table{meta: meta, rows: rows}
}

// AppendRows adds rows to an existing table
func (s *Store) AppendRows(name string, rows ...crm.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return notFound(name)
	}
	t.rows = append(t.rows, rows...)
	return nil
}

// FailNextPage queues err to be returned by the next FetchPage on the table.
// Queued errors are consumed in order.
func (s *Store) FailNextPage(name string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return notFound(name)
	}
	t.pageFaults = append(t.pageFaults, err)
	return nil
}

// FailMetadata makes every FetchMetadata on the table return err
func (s *Store) FailMetadata(name string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return notFound(name)
	}
	t.metadataFault = err
	return nil
}

// PageCalls returns how many pages were requested for the table
func (s *Store) PageCalls(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[strings.ToLower(name)]
}

// FetchMetadata returns a copy of the table's metadata
func (s *Store) FetchMetadata(ctx context.Context, name string) (*crm.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return nil, notFound(name)
	}
	if t.metadataFault != nil {
		return nil, t.metadataFault
	}

	meta := t.meta
	meta.Columns = append([]crm.Column(nil), t.meta.Columns...)
	return &meta, nil
}

// ListTables returns the registered tables sorted by logical name
func (s *Store) ListTables(ctx context.Context) ([]crm.TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]crm.TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		infos = append(infos, crm.TableInfo{
			LogicalName:   t.meta.LogicalName,
			EntitySetName: t.meta.EntitySetName,
			DisplayName:   t.meta.DisplayName,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].LogicalName < infos[j].LogicalName })
	return infos, nil
}

// FetchPage returns one page of rows projected onto the requested columns.
// A cookie takes precedence over the page number. A cookie that does not
// belong to the table, or cannot be decoded, raises the out-of-range fault
// the platform reports for stale paging state.
func (s *Store) FetchPage(ctx context.Context, req crm.PageRequest) (*crm.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.PageSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "page size must be positive, got %d", req.PageSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(req.Table)
	t, ok := s.tables[key]
	if !ok {
		return nil, notFound(req.Table)
	}
	s.calls[key]++

	if len(t.pageFaults) > 0 {
		err := t.pageFaults[0]
		t.pageFaults = t.pageFaults[1:]
		return nil, err
	}

	start, err := startOffset(key, req)
	if err != nil {
		return nil, err
	}
	if start >= len(t.rows) {
		return crm.EmptyPage(), nil
	}

	end := min(start+req.PageSize, len(t.rows))
	result := &crm.PageResult{
		Records:     make([]crm.Record, 0, end-start),
		MoreRecords: end < len(t.rows),
	}
	for _, row := range t.rows[start:end] {
		result.Records = append(result.Records, project(row, req.Columns))
	}

	result.PagingCookie, err = encodeCookie(cookie{Table: key, Offset: end})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func startOffset(key string, req crm.PageRequest) (int, error) {
	if req.PagingCookie == "" {
		page := max(req.PageNumber, 1)
		return (page - 1) * req.PageSize, nil
	}

	c, err := decodeCookie(req.PagingCookie)
	if err != nil || c.Table != key || c.Offset < 0 {
		return 0, &crm.Fault{
			Code:    crm.FaultCodeOutOfRange,
			Message: "paging cookie is not valid for this query",
		}
	}
	return c.Offset, nil
}

func project(row crm.Record, columns []string) crm.Record {
	out := make(crm.Record, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func encodeCookie(c cookie) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode paging cookie")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCookie(s string) (cookie, error) {
	var c cookie
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(raw, &c)
	return c, err
}

func notFound(name string) error {
	return &crm.Fault{
		Code:    crm.FaultCodeObjectNotFound,
		Message: fmt.Sprintf("could not find table %q", name),
	}
}

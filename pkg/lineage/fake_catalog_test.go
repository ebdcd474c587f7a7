package lineage

import (
	"fmt"
	"strings"
	"time"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// fakeCatalog is an in-memory catalog.Catalog used throughout this
// package's tests, grounded on the teacher's DemoCatalog/DemoPKCatalog
// fixtures in pg_lineage/resolver_test.go: a small map-backed stand-in
// rather than a real store, so binder/dispatcher/extractor behavior can
// be tested without a database.
type fakeCatalog struct {
	schemas []catalog.Schema
	tables  []fakeTable

	nextSchemaID int64
	nextTableID  int64
	nextColID    int64
	nextJobID    int64
	nextExecID   int64
	nextEdgeID   int64

	jobsByName map[string]catalog.Job
	execs      []catalog.JobExecution
	edges      map[string]catalog.ColumnLineage

	defaultSchemaID map[int64]int64 // sourceID -> schemaID
}

type fakeTable struct {
	table   catalog.Table
	columns []catalog.Column
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		jobsByName:      map[string]catalog.Job{},
		edges:           map[string]catalog.ColumnLineage{},
		defaultSchemaID: map[int64]int64{},
	}
}

func (f *fakeCatalog) addSchema(sourceID int64, name string) catalog.Schema {
	f.nextSchemaID++
	s := catalog.Schema{ID: f.nextSchemaID, SourceID: sourceID, Name: name}
	f.schemas = append(f.schemas, s)
	return s
}

func (f *fakeCatalog) setDefaultSchema(sourceID int64, schema catalog.Schema) {
	f.defaultSchemaID[sourceID] = schema.ID
}

// addTable registers a table with columns named in declaration order;
// SortOrder is assigned 0-based to match that order.
func (f *fakeCatalog) addTable(schema catalog.Schema, name string, colNames ...string) catalog.Table {
	f.nextTableID++
	tbl := catalog.Table{ID: f.nextTableID, SchemaID: schema.ID, Name: name}
	cols := make([]catalog.Column, 0, len(colNames))
	for i, cn := range colNames {
		f.nextColID++
		cols = append(cols, catalog.Column{ID: f.nextColID, TableID: tbl.ID, Name: cn, DataType: "varchar", SortOrder: i})
	}
	f.tables = append(f.tables, fakeTable{table: tbl, columns: cols})
	return tbl
}

func (f *fakeCatalog) schemaByID(id int64) (catalog.Schema, bool) {
	for _, s := range f.schemas {
		if s.ID == id {
			return s, true
		}
	}
	return catalog.Schema{}, false
}

func (f *fakeCatalog) SearchTable(search catalog.TableSearch) (catalog.Table, error) {
	var matches []fakeTable
	for _, t := range f.tables {
		schema, ok := f.schemaByID(t.table.SchemaID)
		if !ok || schema.SourceID != search.Source.ID {
			continue
		}
		if !strings.EqualFold(t.table.Name, search.Table) {
			continue
		}
		if search.Schema != nil && !strings.EqualFold(schema.Name, *search.Schema) {
			continue
		}
		matches = append(matches, t)
	}
	switch len(matches) {
	case 0:
		return catalog.Table{}, catalog.ErrNotFound
	case 1:
		return matches[0].table, nil
	default:
		return catalog.Table{}, catalog.ErrAmbiguous
	}
}

func (f *fakeCatalog) GetColumnsForTable(table catalog.Table, names []string) ([]catalog.Column, error) {
	for _, t := range f.tables {
		if t.table.ID != table.ID {
			continue
		}
		if len(names) == 0 {
			return append([]catalog.Column(nil), t.columns...), nil
		}
		var out []catalog.Column
		for _, want := range names {
			for _, c := range t.columns {
				if strings.EqualFold(c.Name, want) {
					out = append(out, c)
					break
				}
			}
		}
		return out, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetSchema(source catalog.Source, name string) (catalog.Schema, error) {
	for _, s := range f.schemas {
		if s.SourceID == source.ID && strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return catalog.Schema{}, catalog.ErrNotFound
}

func (f *fakeCatalog) AddTable(schema catalog.Schema, name string) (catalog.Table, error) {
	return f.addTable(schema, name), nil
}

func (f *fakeCatalog) AddColumn(table catalog.Table, name string, dataType string, sortOrder int) (catalog.Column, error) {
	f.nextColID++
	col := catalog.Column{ID: f.nextColID, TableID: table.ID, Name: name, DataType: dataType, SortOrder: sortOrder}
	for i, t := range f.tables {
		if t.table.ID == table.ID {
			f.tables[i].columns = append(f.tables[i].columns, col)
			return col, nil
		}
	}
	return catalog.Column{}, catalog.ErrNotFound
}

func (f *fakeCatalog) AddJob(source catalog.Source, name string, context map[string]string) (catalog.Job, error) {
	if job, ok := f.jobsByName[name]; ok {
		return job, nil
	}
	f.nextJobID++
	job := catalog.Job{ID: f.nextJobID, Name: name, SourceID: source.ID, Context: context}
	f.jobsByName[name] = job
	return job, nil
}

func (f *fakeCatalog) AddJobExecution(job catalog.Job, startedAt, endedAt time.Time, status catalog.JobStatus) (catalog.JobExecution, error) {
	f.nextExecID++
	exec := catalog.JobExecution{ID: f.nextExecID, JobID: job.ID, StartedAt: startedAt, EndedAt: endedAt, Status: status}
	f.execs = append(f.execs, exec)
	return exec, nil
}

// AddColumnLineage is insert-or-ignore on the natural key (spec.md §4.6).
func (f *fakeCatalog) AddColumnLineage(sourceColumn, targetColumn catalog.Column, exec catalog.JobExecution, context map[string]string) (catalog.ColumnLineage, error) {
	key := fmt.Sprintf("%d:%d:%d", sourceColumn.ID, targetColumn.ID, exec.ID)
	if existing, ok := f.edges[key]; ok {
		return existing, nil
	}
	f.nextEdgeID++
	edge := catalog.ColumnLineage{
		ID:             f.nextEdgeID,
		SourceColumnID: sourceColumn.ID,
		TargetColumnID: targetColumn.ID,
		JobExecutionID: exec.ID,
		Context:        context,
	}
	f.edges[key] = edge
	return edge, nil
}

func (f *fakeCatalog) SourceDefaultSchema(source catalog.Source) (catalog.Schema, error) {
	id, ok := f.defaultSchemaID[source.ID]
	if !ok {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	schema, ok := f.schemaByID(id)
	if !ok {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	return schema, nil
}

// clone deep-copies f so a RunInTransaction call can mutate the copy
// and discard it on rollback without disturbing f itself.
func (f *fakeCatalog) clone() *fakeCatalog {
	cp := &fakeCatalog{
		schemas:         append([]catalog.Schema(nil), f.schemas...),
		nextSchemaID:    f.nextSchemaID,
		nextTableID:     f.nextTableID,
		nextColID:       f.nextColID,
		nextJobID:       f.nextJobID,
		nextExecID:      f.nextExecID,
		nextEdgeID:      f.nextEdgeID,
		jobsByName:      make(map[string]catalog.Job, len(f.jobsByName)),
		execs:           append([]catalog.JobExecution(nil), f.execs...),
		edges:           make(map[string]catalog.ColumnLineage, len(f.edges)),
		defaultSchemaID: make(map[int64]int64, len(f.defaultSchemaID)),
	}
	cp.tables = make([]fakeTable, len(f.tables))
	for i, t := range f.tables {
		cp.tables[i] = fakeTable{table: t.table, columns: append([]catalog.Column(nil), t.columns...)}
	}
	for k, v := range f.jobsByName {
		cp.jobsByName[k] = v
	}
	for k, v := range f.edges {
		cp.edges[k] = v
	}
	for k, v := range f.defaultSchemaID {
		cp.defaultSchemaID[k] = v
	}
	return cp
}

// RunInTransaction mirrors catalogstore.Store's semantics on a snapshot:
// fn runs against a clone, and f only absorbs the clone's state if fn
// returns nil. A rolled-back fn's writes never become visible to f.
func (f *fakeCatalog) RunInTransaction(fn func(catalog.Catalog) error) error {
	cp := f.clone()
	if err := fn(cp); err != nil {
		return err
	}
	*f = *cp
	return nil
}

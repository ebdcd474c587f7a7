// Package catalog defines the entities and lookup/write surface the
// lineage analyzer binds SQL against. It owns no persistence: concrete
// storage lives in pkg/catalogstore; the analyzer in pkg/lineage only
// ever sees this interface.
package catalog

import "time"

// SourceType selects dialect-specific parsing behavior. It is a closed
// enumeration, not open polymorphism (per the dialect plug-in note in
// spec.md's design notes).
type SourceType int

const (
	SourceGeneric SourceType = iota
	SourceRedshift
)

func (t SourceType) String() string {
	switch t {
	case SourceRedshift:
		return "redshift"
	default:
		return "generic"
	}
}

// Source is a connection-level catalog entity: a single warehouse or
// database the analyzer extracts lineage from.
type Source struct {
	ID              int64
	Name            string
	Type            SourceType
	DefaultSchemaID *int64
}

// Schema belongs to a Source.
type Schema struct {
	ID       int64
	SourceID int64
	Name     string
}

// Table belongs to a Schema. Columns are not embedded: callers fetch
// them via Catalog.GetColumnsForTable so ordering/filtering stays a
// store concern.
type Table struct {
	ID       int64
	SchemaID int64
	Name     string
}

// Column belongs to a Table. SortOrder mirrors the table's declared
// column order; it is 0-based for catalogued tables, while tables the
// CTAS auto-create path adds number their columns from 1.
type Column struct {
	ID        int64
	TableID   int64
	Name      string
	DataType  string
	SortOrder int
}

// JobStatus is the closed set of JobExecution outcomes.
type JobStatus int

const (
	StatusSuccess JobStatus = iota
	StatusFailure
)

func (s JobStatus) String() string {
	if s == StatusFailure {
		return "failure"
	}
	return "success"
}

// Job is a named unit of lineage provenance: one tracked query or
// pipeline step.
type Job struct {
	ID       int64
	Name     string
	SourceID int64
	Context  map[string]string
}

// JobExecution is one recorded run of a Job.
type JobExecution struct {
	ID        int64
	JobID     int64
	StartedAt time.Time
	EndedAt   time.Time
	Status    JobStatus
}

// ColumnLineage is a single directed lineage edge attributed to a
// JobExecution.
type ColumnLineage struct {
	ID             int64
	SourceColumnID int64
	TargetColumnID int64
	JobExecutionID int64
	Context        map[string]string
}

// TableSearch narrows Catalog.SearchTable. Schema is nil when the
// table reference in SQL was unqualified.
type TableSearch struct {
	Source Source
	Schema *string
	Table  string
}

// Catalog is the narrow store interface of spec.md §6.2. Every
// resolution failure is reported as one of the sentinel-wrapped errors
// in pkg/lineage/errors.go by the caller, not by implementations of
// this interface: Catalog methods return plain Go errors (typically
// ErrNotFound) and pkg/lineage attaches structured context.
type Catalog interface {
	// SearchTable resolves a (source, schema?, table) reference.
	// schema == nil means unqualified: the search is constrained to
	// Source only. Returns ErrNotFound if no table matches, or
	// ErrAmbiguous if more than one table matches an unqualified name.
	SearchTable(search TableSearch) (Table, error)

	// GetColumnsForTable returns a Table's columns. If names is empty,
	// the result is every column ordered by SortOrder. If names is
	// non-empty, the result is filtered to those names (case-
	// insensitive) and returned in the order names lists them, not
	// SortOrder: callers use this for explicit INSERT/CTAS column
	// lists, where positional pairing must follow the query's own
	// textual order (spec.md §3 invariant 5). Columns that don't exist
	// are simply absent from the result, the caller diagnoses the gap.
	GetColumnsForTable(table Table, names []string) ([]Column, error)

	// GetSchema resolves a named schema under a source.
	GetSchema(source Source, name string) (Schema, error)

	// AddTable creates a table in a schema. Used only by the CTAS
	// auto-create path (spec.md §4.5).
	AddTable(schema Schema, name string) (Table, error)

	// AddColumn creates a column on a table with an explicit sort
	// order. Used only by the CTAS auto-create path.
	AddColumn(table Table, name string, dataType string, sortOrder int) (Column, error)

	// AddJob creates (or returns the existing) Job for a source.
	AddJob(source Source, name string, context map[string]string) (Job, error)

	// AddJobExecution records one run of a Job.
	AddJobExecution(job Job, startedAt, endedAt time.Time, status JobStatus) (JobExecution, error)

	// AddColumnLineage writes one lineage edge. Idempotent on the
	// natural key (source_column_id, target_column_id,
	// job_execution_id): a duplicate call is a no-op, not an error.
	AddColumnLineage(sourceColumn, targetColumn Column, exec JobExecution, context map[string]string) (ColumnLineage, error)

	// SourceDefaultSchema returns a source's default schema, or
	// ErrNotFound if none is configured.
	SourceDefaultSchema(source Source) (Schema, error)

	// RunInTransaction runs fn against a transaction-scoped Catalog:
	// every write fn performs through the Catalog it's handed — CTAS
	// table/column creation, the Job, the JobExecution, every lineage
	// edge — commits together if fn returns nil, or is rolled back in
	// full if fn returns an error (spec.md §5: "all writes for one
	// query ... occur under a single transaction"). fn's own error is
	// returned unchanged so callers can still type-assert it.
	RunInTransaction(fn func(Catalog) error) error
}

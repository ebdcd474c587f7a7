// Package catalogstore is the Postgres-backed implementation of
// pkg/catalog.Catalog (spec.md §6.2). It owns the schema (via the goose
// migrations in pkg/catalogstore/migrations) and the transactional
// write semantics spec.md §5 requires: RunInTransaction opens one
// *sql.Tx and hands back a Store scoped to it, so every write a caller
// performs for a single query — CTAS table/column creation, the Job,
// the JobExecution, every lineage edge — commits or rolls back
// together, adapted from the teacher's richcatalog.go/fixgres.go use
// of database/sql against the pgx/v5/stdlib driver.
package catalogstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// querier is the subset of *sql.DB and *sql.Tx every Store method runs
// against, so the same method bodies work whether a Store is top-level
// (q == db) or transaction-scoped (q == a *sql.Tx from RunInTransaction).
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a catalog.Catalog backed by a Postgres database reachable
// through db. Open it with sql.Open("pgx", connString); Store itself
// never manages the connection's lifecycle. db is nil on a Store
// returned by RunInTransaction — such a Store is scoped to one
// transaction and cannot itself start another.
type Store struct {
	db *sql.DB
	q  querier
}

// New wraps an already-open *sql.DB. Callers run migrations (see
// pkg/catalogstore/migrate.go) before handing the DB to Store.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// RunInTransaction implements catalog.Catalog's single-transaction-per-
// query entry point: it begins one *sql.Tx, hands fn a Store scoped to
// it, and commits only if fn returns nil. Any error from fn — a bind
// failure partway through a CTAS auto-create, an arity mismatch after
// the target table already exists, a store error on the Nth lineage
// edge — rolls back everything fn wrote through its Store, including
// work done before the error (spec.md §5, §8's CTAS-rollback property).
func (s *Store) RunInTransaction(fn func(catalog.Catalog) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SearchTable(search catalog.TableSearch) (catalog.Table, error) {
	ctx := context.Background()
	var rows *sql.Rows
	var err error
	if search.Schema != nil {
		rows, err = s.q.QueryContext(ctx, `
			SELECT t.id, t.schema_id, t.name
			FROM tables t
			JOIN schemas sc ON sc.id = t.schema_id
			WHERE sc.source_id = $1 AND lower(sc.name) = lower($2) AND lower(t.name) = lower($3)`,
			search.Source.ID, *search.Schema, search.Table)
	} else {
		rows, err = s.q.QueryContext(ctx, `
			SELECT t.id, t.schema_id, t.name
			FROM tables t
			JOIN schemas sc ON sc.id = t.schema_id
			WHERE sc.source_id = $1 AND lower(t.name) = lower($2)`,
			search.Source.ID, search.Table)
	}
	if err != nil {
		return catalog.Table{}, fmt.Errorf("searching table %q: %w", search.Table, err)
	}
	defer rows.Close()

	var matches []catalog.Table
	for rows.Next() {
		var t catalog.Table
		if err := rows.Scan(&t.ID, &t.SchemaID, &t.Name); err != nil {
			return catalog.Table{}, fmt.Errorf("scanning table row: %w", err)
		}
		matches = append(matches, t)
	}
	if err := rows.Err(); err != nil {
		return catalog.Table{}, err
	}

	switch len(matches) {
	case 0:
		return catalog.Table{}, catalog.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return catalog.Table{}, catalog.ErrAmbiguous
	}
}

// GetColumnsForTable fetches in SortOrder, then — when names is
// non-empty — reorders the result to match names's own order, the same
// semantics pkg/lineage's fake test catalog uses: positional pairing
// downstream must follow the query's textual column-list order, not
// the catalog's declared order.
func (s *Store) GetColumnsForTable(table catalog.Table, names []string) ([]catalog.Column, error) {
	ctx := context.Background()
	query := `SELECT id, table_id, name, data_type, sort_order FROM columns WHERE table_id = $1`
	args := []any{table.ID}
	if len(names) > 0 {
		query += ` AND lower(name) = ANY($2)`
		args = append(args, lowerAll(names))
	}
	query += ` ORDER BY sort_order`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching columns for table %q: %w", table.Name, err)
	}
	defer rows.Close()

	var out []catalog.Column
	for rows.Next() {
		var c catalog.Column
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.DataType, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return out, nil
	}
	return reorderByNames(out, names), nil
}

// reorderByNames returns cols in the order names lists them; a name
// with no matching column is simply skipped (the caller diagnoses the
// gap by comparing lengths, as targetColumns does).
func reorderByNames(cols []catalog.Column, names []string) []catalog.Column {
	out := make([]catalog.Column, 0, len(names))
	for _, want := range names {
		for _, c := range cols {
			if strings.EqualFold(c.Name, want) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (s *Store) GetSchema(source catalog.Source, name string) (catalog.Schema, error) {
	var sc catalog.Schema
	err := s.q.QueryRowContext(context.Background(),
		`SELECT id, source_id, name FROM schemas WHERE source_id = $1 AND lower(name) = lower($2)`,
		source.ID, name,
	).Scan(&sc.ID, &sc.SourceID, &sc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Schema{}, fmt.Errorf("fetching schema %q: %w", name, err)
	}
	return sc, nil
}

func (s *Store) AddTable(schema catalog.Schema, name string) (catalog.Table, error) {
	var t catalog.Table
	err := s.q.QueryRowContext(context.Background(),
		`INSERT INTO tables (schema_id, name) VALUES ($1, $2)
		 ON CONFLICT (schema_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, schema_id, name`,
		schema.ID, name,
	).Scan(&t.ID, &t.SchemaID, &t.Name)
	if err != nil {
		return catalog.Table{}, fmt.Errorf("creating table %q: %w", name, err)
	}
	return t, nil
}

func (s *Store) AddColumn(table catalog.Table, name string, dataType string, sortOrder int) (catalog.Column, error) {
	var c catalog.Column
	err := s.q.QueryRowContext(context.Background(),
		`INSERT INTO columns (table_id, name, data_type, sort_order) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (table_id, name) DO UPDATE SET data_type = EXCLUDED.data_type, sort_order = EXCLUDED.sort_order
		 RETURNING id, table_id, name, data_type, sort_order`,
		table.ID, name, dataType, sortOrder,
	).Scan(&c.ID, &c.TableID, &c.Name, &c.DataType, &c.SortOrder)
	if err != nil {
		return catalog.Column{}, fmt.Errorf("creating column %q on table %q: %w", name, table.Name, err)
	}
	return c, nil
}

func (s *Store) AddJob(source catalog.Source, name string, ctx map[string]string) (catalog.Job, error) {
	payload, err := json.Marshal(ctx)
	if err != nil {
		return catalog.Job{}, fmt.Errorf("marshaling job context: %w", err)
	}
	var j catalog.Job
	var raw []byte
	err = s.q.QueryRowContext(context.Background(),
		`INSERT INTO jobs (source_id, name, context) VALUES ($1, $2, $3)
		 ON CONFLICT (source_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, source_id, name, context`,
		source.ID, name, payload,
	).Scan(&j.ID, &j.SourceID, &j.Name, &raw)
	if err != nil {
		return catalog.Job{}, fmt.Errorf("creating job %q: %w", name, err)
	}
	if err := json.Unmarshal(raw, &j.Context); err != nil {
		return catalog.Job{}, fmt.Errorf("unmarshaling job context: %w", err)
	}
	return j, nil
}

func (s *Store) AddJobExecution(job catalog.Job, startedAt, endedAt time.Time, status catalog.JobStatus) (catalog.JobExecution, error) {
	var e catalog.JobExecution
	var statusText string
	err := s.q.QueryRowContext(context.Background(),
		`INSERT INTO job_executions (job_id, started_at, ended_at, status) VALUES ($1, $2, $3, $4)
		 RETURNING id, job_id, started_at, ended_at, status`,
		job.ID, startedAt, endedAt, status.String(),
	).Scan(&e.ID, &e.JobID, &e.StartedAt, &e.EndedAt, &statusText)
	if err != nil {
		return catalog.JobExecution{}, fmt.Errorf("creating job execution for job %q: %w", job.Name, err)
	}
	e.Status = parseJobStatus(statusText)
	return e, nil
}

func parseJobStatus(s string) catalog.JobStatus {
	if s == catalog.StatusFailure.String() {
		return catalog.StatusFailure
	}
	return catalog.StatusSuccess
}

// AddColumnLineage writes one edge. It is a single INSERT ... ON
// CONFLICT statement, atomic on its own; callers that need it to share
// fate with the rest of a query's writes reach it through the Store
// RunInTransaction hands them, which runs it on the same *sql.Tx as
// everything else.
func (s *Store) AddColumnLineage(sourceColumn, targetColumn catalog.Column, exec catalog.JobExecution, ctx map[string]string) (catalog.ColumnLineage, error) {
	payload, err := json.Marshal(ctx)
	if err != nil {
		return catalog.ColumnLineage{}, fmt.Errorf("marshaling lineage context: %w", err)
	}

	var edge catalog.ColumnLineage
	var raw []byte
	err = s.q.QueryRowContext(context.Background(),
		`INSERT INTO column_lineage (source_column_id, target_column_id, job_execution_id, context)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source_column_id, target_column_id, job_execution_id) DO UPDATE SET context = column_lineage.context
		 RETURNING id, source_column_id, target_column_id, job_execution_id, context`,
		sourceColumn.ID, targetColumn.ID, exec.ID, payload,
	).Scan(&edge.ID, &edge.SourceColumnID, &edge.TargetColumnID, &edge.JobExecutionID, &raw)
	if err != nil {
		return catalog.ColumnLineage{}, fmt.Errorf("writing lineage edge: %w", err)
	}
	if err := json.Unmarshal(raw, &edge.Context); err != nil {
		return catalog.ColumnLineage{}, fmt.Errorf("unmarshaling lineage context: %w", err)
	}
	return edge, nil
}

func (s *Store) SourceDefaultSchema(source catalog.Source) (catalog.Schema, error) {
	var sc catalog.Schema
	err := s.q.QueryRowContext(context.Background(),
		`SELECT sc.id, sc.source_id, sc.name
		 FROM schemas sc JOIN sources src ON src.default_schema_id = sc.id
		 WHERE src.id = $1`,
		source.ID,
	).Scan(&sc.ID, &sc.SourceID, &sc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Schema{}, fmt.Errorf("fetching default schema for source %q: %w", source.Name, err)
	}
	return sc, nil
}

func lowerAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

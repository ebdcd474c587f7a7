package lineage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// newPageFixtures builds the catalog fixture spec.md §8's end-to-end
// scenarios are written against: source "test", schema "default", with
// page/page_lookup/page_lookup_redirect/page_lookup_nonredirect tables.
func newPageFixtures(t *testing.T) (*fakeCatalog, catalog.Source, catalog.Schema) {
	t.Helper()
	cat := newFakeCatalog()
	source := catalog.Source{ID: 1, Name: "test", Type: catalog.SourceGeneric}
	schema := cat.addSchema(source.ID, "default")
	cat.setDefaultSchema(source.ID, schema)

	cat.addTable(schema, "page", "page_id", "page_title", "page_latest")
	cat.addTable(schema, "page_lookup_nonredirect", "redirect_id", "redirect_title", "true_title", "page_id", "page_version")
	cat.addTable(schema, "page_lookup_redirect", "redirect_id", "redirect_title", "true_title", "page_id", "page_version")
	cat.addTable(schema, "page_lookup", "redirect_id", "redirect_title", "true_title", "page_id", "page_version")
	return cat, source, schema
}

func analyze(t *testing.T, cat *fakeCatalog, source catalog.Source, query string) (ExtractionResult, error) {
	t.Helper()
	a := NewAnalyzer(cat, nil)
	now := time.Now()
	return a.AnalyzeQuery(source, query, WithJobName("t"), WithTiming(now, now))
}

func TestInsertSelectAllColumnsPositional(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`INSERT INTO page_lookup_nonredirect SELECT page.page_id, page.page_title, page.page_title, page.page_id, page.page_latest FROM page`)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EdgeCount)
}

func TestInsertSelectExplicitColumnList(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`INSERT INTO page_lookup_nonredirect(page_id, page_version) SELECT page.page_id, page.page_latest FROM page`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EdgeCount)
}

func TestInsertSelectStar(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`INSERT INTO page_lookup SELECT * FROM page_lookup_redirect`)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EdgeCount)
}

func TestInsertSelectWithCTE(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`WITH pln AS (SELECT redirect_title, true_title, page_id, page_version FROM page_lookup_nonredirect) `+
			`INSERT INTO page_lookup_redirect(redirect_title, true_title, page_id, page_version) SELECT * FROM pln`)
	require.NoError(t, err)
	assert.Equal(t, 4, res.EdgeCount)
}

func TestInsertSelectRedshiftDateadd(t *testing.T) {
	cat := newFakeCatalog()
	source := catalog.Source{ID: 1, Name: "test", Type: catalog.SourceRedshift}
	schema := cat.addSchema(source.ID, "default")
	cat.setDefaultSchema(source.ID, schema)
	cat.addTable(schema, "page_lookup_nonredirect", "redirect_id", "redirect_title", "true_title", "page_id", "page_version")
	cat.addTable(schema, "page_lookup_redirect", "redirect_id", "redirect_title", "true_title", "page_id", "page_version")

	res, err := analyze(t, cat, source,
		`INSERT INTO page_lookup_redirect(true_title) `+
			`SELECT BTRIM(TO_CHAR(DATEADD(MONTH, -1, ('20'||MAX(redirect_id)||'-01')::DATE)::DATE, 'YY-MM')) AS max_month `+
			`FROM page_lookup_nonredirect`)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EdgeCount)
}

func TestCTASAutoCreatesTargetTable(t *testing.T) {
	cat, source, schema := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`CREATE TEMP TABLE temp_x(page_title) AS SELECT redirect_title FROM page_lookup_nonredirect`)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EdgeCount)

	tbl, err := cat.SearchTable(catalog.TableSearch{Source: source, Schema: &schema.Name, Table: "temp_x"})
	require.NoError(t, err)
	cols, err := cat.GetColumnsForTable(tbl, nil)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "page_title", cols[0].Name)
	assert.Equal(t, "varchar", cols[0].DataType)
	assert.Equal(t, 1, cols[0].SortOrder)
}

// TestCTASAutoCreatesTargetTableWithoutColumnList covers the case the
// INTO clause gives no column list at all: the auto-created table's
// columns must come from the SELECT's own projected aliases, not be
// left empty (which would make checkArity reject every such query).
func TestCTASAutoCreatesTargetTableWithoutColumnList(t *testing.T) {
	cat, source, schema := newPageFixtures(t)
	res, err := analyze(t, cat, source,
		`CREATE TEMP TABLE temp_y AS SELECT redirect_title, true_title FROM page_lookup_nonredirect`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EdgeCount)

	tbl, err := cat.SearchTable(catalog.TableSearch{Source: source, Schema: &schema.Name, Table: "temp_y"})
	require.NoError(t, err)
	cols, err := cat.GetColumnsForTable(tbl, nil)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "redirect_title", cols[0].Name)
	assert.Equal(t, "true_title", cols[1].Name)
}

func TestInsertTargetTableNotFound(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	_, err := analyze(t, cat, source, `INSERT INTO p_lookup SELECT * FROM page_lookup_redirect`)
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindTableNotFound, lerr.Kind)
}

func TestInsertExplicitColumnNotFound(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	_, err := analyze(t, cat, source, `INSERT INTO page_lookup(title) SELECT true_title FROM page_lookup_redirect`)
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindColumnNotFound, lerr.Kind)
}

func TestInsertSyntaxError(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	_, err := analyze(t, cat, source, `INSERT page_lookup SELECT * FROM page_lookup_redirect`)
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindSyntaxError, lerr.Kind)
}

func TestInsertArityMismatch(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	_, err := analyze(t, cat, source, `INSERT INTO page_lookup SELECT page_id FROM page_lookup_redirect`)
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindSemanticError, lerr.Kind)
}

func TestParseAllSkipsSyntaxErrorsButKeepsGoing(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	a := NewAnalyzer(cat, nil)
	queries := []string{
		`INSERT page_lookup SELECT * FROM page_lookup_redirect`,
		`INSERT INTO page_lookup SELECT * FROM page_lookup_redirect`,
	}
	results := a.ParseAll(source, queries)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 5, results[1].Result.EdgeCount)
}

func TestJobNameDefaultsToDeterministicHash(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	a := NewAnalyzer(cat, nil)
	query := `INSERT INTO page_lookup SELECT * FROM page_lookup_redirect`
	now := time.Now()
	r1, err := a.AnalyzeQuery(source, query, WithTiming(now, now))
	require.NoError(t, err)
	r2, err := a.AnalyzeQuery(source, query, WithTiming(now, now))
	require.NoError(t, err)
	assert.Equal(t, r1.Job.Name, r2.Job.Name)
	assert.Equal(t, r1.Job.ID, r2.Job.ID)
}

func TestIdempotentEdgeWrite(t *testing.T) {
	cat, source, _ := newPageFixtures(t)
	a := NewAnalyzer(cat, nil)
	now := time.Now()
	query := `INSERT INTO page_lookup SELECT * FROM page_lookup_redirect`
	r1, err := a.AnalyzeQuery(source, query, WithJobName("same-job"), WithTiming(now, now))
	require.NoError(t, err)

	exec := r1.JobExecution
	targetTable, err := cat.SearchTable(catalog.TableSearch{Source: source, Table: "page_lookup"})
	require.NoError(t, err)
	srcTable, err := cat.SearchTable(catalog.TableSearch{Source: source, Table: "page_lookup_redirect"})
	require.NoError(t, err)
	targetCols, err := cat.GetColumnsForTable(targetTable, nil)
	require.NoError(t, err)
	srcCols, err := cat.GetColumnsForTable(srcTable, nil)
	require.NoError(t, err)

	before := len(cat.edges)
	_, err = cat.AddColumnLineage(srcCols[0], targetCols[0], exec, map[string]string{})
	require.NoError(t, err)
	assert.Len(t, cat.edges, before)
}

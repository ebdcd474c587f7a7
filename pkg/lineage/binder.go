package lineage

import (
	"fmt"
	"strings"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// aliasGen produces the unbounded sequence of synthetic aliases spec.md
// §4.4 calls for (`_U0`, `_U1`, …) for projections that end up with
// neither a ResTarget alias nor a single unambiguous column name.
type aliasGen struct{ n int }

func (g *aliasGen) next() string {
	s := fmt.Sprintf("_U%d", g.n)
	g.n++
	return s
}

// exposedColumn is one name an aliasEntry makes available to column
// binding, paired with the catalog column(s) that feed it. A base table
// exposes one underlying column per name; a subquery or CTE exposes
// whatever BoundColumn its own projection resolved to, which may fan in
// from more than one underlying column.
type exposedColumn struct {
	name string
	cols []catalog.Column
}

// aliasEntry is one binding in the AliasEnv: spec.md's BaseAlias (a
// catalog table reached directly) or ScopedAlias (a subquery/CTE body,
// reached only through its own resolved projection).
type aliasEntry struct {
	name    string
	tables  []catalog.Table
	columns []exposedColumn
}

func (e aliasEntry) find(name string) []exposedColumn {
	var out []exposedColumn
	for _, c := range e.columns {
		if strings.EqualFold(c.name, name) {
			out = append(out, c)
		}
	}
	return out
}

// aliasEnv is the ordered alias environment threaded through binding.
// Entry order is preserved because bare-star expansion and ambiguity
// diagnostics both depend on "the order entries were introduced"
// (spec.md §4.4.2).
type aliasEnv struct {
	entries []aliasEntry
	byName  map[string]int
}

func newAliasEnv() *aliasEnv {
	return &aliasEnv{byName: map[string]int{}}
}

func (e *aliasEnv) clone() *aliasEnv {
	if e == nil {
		return newAliasEnv()
	}
	out := newAliasEnv()
	out.entries = append([]aliasEntry(nil), e.entries...)
	for k, v := range e.byName {
		out.byName[k] = v
	}
	return out
}

func (e *aliasEnv) lookup(name string) (aliasEntry, bool) {
	if e == nil {
		return aliasEntry{}, false
	}
	i, ok := e.byName[strings.ToLower(name)]
	if !ok {
		return aliasEntry{}, false
	}
	return e.entries[i], true
}

func (e *aliasEnv) add(entry aliasEntry) {
	e.byName[strings.ToLower(entry.name)] = len(e.entries)
	e.entries = append(e.entries, entry)
}

func (e *aliasEnv) names() []string {
	out := make([]string, 0, len(e.entries))
	for _, en := range e.entries {
		out = append(out, en.name)
	}
	return out
}

// binder resolves one statement's table and column references against
// a catalog source.
type binder struct {
	cat    catalog.Catalog
	source catalog.Source
	dlct   dialect
}

func newBinder(cat catalog.Catalog, source catalog.Source) *binder {
	return &binder{cat: cat, source: source, dlct: dialectFor(source.Type)}
}

// bindQuery runs the full §4.4 pipeline over one QueryShape: CTEs bind
// first in textual order (§4.4.3), then the main body's tables, then
// its columns.
func (b *binder) bindQuery(shape QueryShape, inherited *aliasEnv, gen *aliasGen) ([]BoundColumn, []catalog.Table, error) {
	env := inherited.clone()
	for _, cte := range shape.WithAliases {
		cteEnv, err := b.bindTables(cte.Sources, env, gen)
		if err != nil {
			return nil, nil, err
		}
		boundCols, tables, err := b.bindColumns(cte.Projections, cteEnv, gen)
		if err != nil {
			return nil, nil, err
		}
		env.add(aliasEntry{
			name:    cte.Name,
			tables:  tables,
			columns: exposedFromBound(boundCols),
		})
	}

	env, err := b.bindTables(shape.Sources, env, gen)
	if err != nil {
		return nil, nil, err
	}
	return b.bindColumns(shape.Projections, env, gen)
}

// bindTables implements §4.4.1.
func (b *binder) bindTables(sources []TableRef, inherited *aliasEnv, gen *aliasGen) (*aliasEnv, error) {
	env := inherited.clone()
	for _, t := range sources {
		if t.IsSubselect() {
			entry, err := b.bindSubselect(t, env, gen)
			if err != nil {
				return nil, err
			}
			env.add(entry)
			continue
		}

		rv := t.RangeVar
		relname := rv.GetRelname()
		schemaname := rv.GetSchemaname()
		explicitAlias := rv.GetAlias().GetAliasname()

		if explicitAlias == "" && schemaname == "" {
			if _, ok := inherited.lookup(relname); ok {
				// Already reachable through the inherited scope (most
				// commonly a CTE bound earlier in this same query):
				// reuse it, register no new binding.
				continue
			}
		}

		var schemaPtr *string
		if schemaname != "" {
			schemaPtr = &schemaname
		}
		tbl, err := b.cat.SearchTable(catalog.TableSearch{Source: b.source, Schema: schemaPtr, Table: relname})
		if err != nil {
			return nil, b.tableLookupErr(err, schemaname, relname)
		}
		cols, err := b.cat.GetColumnsForTable(tbl, nil)
		if err != nil {
			return nil, storeErrorf(err, "fetching columns for table %q", relname)
		}

		aliasName := explicitAlias
		if aliasName == "" {
			if schemaname != "" {
				aliasName = schemaname + "." + relname
			} else {
				aliasName = relname
			}
		}
		env.add(aliasEntry{
			name:    aliasName,
			tables:  []catalog.Table{tbl},
			columns: exposedFromColumns(cols),
		})
	}
	return env, nil
}

func (b *binder) bindSubselect(t TableRef, inherited *aliasEnv, gen *aliasGen) (aliasEntry, error) {
	rs := t.RangeSubselect
	aliasName := rs.GetAlias().GetAliasname()
	inner := visitSelect(b.dlct, rs.GetSubquery().GetSelectStmt())
	boundCols, tables, err := b.bindQuery(inner, inherited, gen)
	if err != nil {
		return aliasEntry{}, err
	}
	return aliasEntry{
		name:    aliasName,
		tables:  tables,
		columns: exposedFromBound(boundCols),
	}, nil
}

func (b *binder) tableLookupErr(err error, schema, table string) error {
	sought := table
	if schema != "" {
		sought = schema + "." + table
	}
	if err == catalog.ErrAmbiguous {
		return tableNotFound(sought)
	}
	return tableNotFound(sought).withCause(err)
}

func exposedFromColumns(cols []catalog.Column) []exposedColumn {
	out := make([]exposedColumn, 0, len(cols))
	for _, c := range cols {
		out = append(out, exposedColumn{name: c.Name, cols: []catalog.Column{c}})
	}
	return out
}

func exposedFromBound(bound []BoundColumn) []exposedColumn {
	out := make([]exposedColumn, 0, len(bound))
	for _, bc := range bound {
		out = append(out, exposedColumn{name: bc.Alias, cols: bc.Columns})
	}
	return out
}

// bindColumns implements §4.4.2.
func (b *binder) bindColumns(projections []ProjectedExpr, env *aliasEnv, gen *aliasGen) ([]BoundColumn, []catalog.Table, error) {
	var result []BoundColumn
	usedTables := map[int64]catalog.Table{}
	useTable := func(t catalog.Table) { usedTables[t.ID] = t }

	for _, proj := range projections {
		candidates, err := b.candidateEntries(proj, env)
		if err != nil {
			return nil, nil, err
		}

		if proj.IsStar {
			expanded, err := b.resolveStar(proj, candidates, env, useTable)
			if err != nil {
				return nil, nil, err
			}
			result = append(result, expanded...)
			continue
		}

		var union []catalog.Column
		for _, ref := range proj.Columns {
			cols, err := b.resolveColumnRef(ref, candidates, env, useTable)
			if err != nil {
				return nil, nil, err
			}
			union = append(union, cols...)
		}

		alias := proj.Alias
		if alias == "" {
			if len(union) == 1 {
				alias = union[0].Name
			} else {
				alias = gen.next()
			}
		}
		result = append(result, BoundColumn{Alias: alias, Columns: union})
	}

	if len(result) == 0 {
		return nil, nil, newErr(KindColumnNotFound, "No source columns found")
	}

	tables := make([]catalog.Table, 0, len(usedTables))
	for _, t := range env.entries {
		for _, tbl := range t.tables {
			if _, ok := usedTables[tbl.ID]; ok {
				tables = appendTableOnce(tables, tbl)
			}
		}
	}
	return result, tables, nil
}

func appendTableOnce(tables []catalog.Table, t catalog.Table) []catalog.Table {
	for _, existing := range tables {
		if existing.ID == t.ID {
			return tables
		}
	}
	return append(tables, t)
}

// candidateEntries implements the candidate-set rule at the top of
// §4.4.2 step 1: qualified references pin the candidate set to the
// entries they name; otherwise every entry in scope is a candidate.
func (b *binder) candidateEntries(proj ProjectedExpr, env *aliasEnv) ([]aliasEntry, error) {
	var qualifiers []string
	seen := map[string]bool{}
	for _, ref := range proj.Columns {
		if ref.Qualified() && !seen[strings.ToLower(ref.Qualifier)] {
			seen[strings.ToLower(ref.Qualifier)] = true
			qualifiers = append(qualifiers, ref.Qualifier)
		}
	}
	if len(qualifiers) == 0 {
		return env.entries, nil
	}
	out := make([]aliasEntry, 0, len(qualifiers))
	for _, q := range qualifiers {
		entry, ok := env.lookup(q)
		if !ok {
			return nil, tableNotFound(q)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (b *binder) resolveStar(proj ProjectedExpr, candidates []aliasEntry, env *aliasEnv, use func(catalog.Table)) ([]BoundColumn, error) {
	var ref ColRef
	if len(proj.Columns) > 0 {
		ref = proj.Columns[0]
	}

	if ref.Qualified() {
		entry, ok := env.lookup(ref.Qualifier)
		if !ok {
			return nil, tableNotFound(ref.Qualifier)
		}
		for _, t := range entry.tables {
			use(t)
		}
		return boundFromEntry(entry), nil
	}

	var out []BoundColumn
	for _, entry := range candidates {
		for _, t := range entry.tables {
			use(t)
		}
		out = append(out, boundFromEntry(entry)...)
	}
	return out, nil
}

func boundFromEntry(entry aliasEntry) []BoundColumn {
	out := make([]BoundColumn, 0, len(entry.columns))
	for _, c := range entry.columns {
		out = append(out, BoundColumn{Alias: c.name, Columns: c.cols})
	}
	return out
}

func (b *binder) resolveColumnRef(ref ColRef, candidates []aliasEntry, env *aliasEnv, use func(catalog.Table)) ([]catalog.Column, error) {
	if ref.Qualified() {
		entry, ok := env.lookup(ref.Qualifier)
		if !ok {
			return nil, tableNotFound(ref.Qualifier)
		}
		matches := entry.find(ref.Name)
		switch len(matches) {
		case 0:
			return nil, columnNotFound(ref.Qualifier + "." + ref.Name)
		case 1:
			for _, t := range entry.tables {
				use(t)
			}
			return matches[0].cols, nil
		default:
			return nil, columnNotFound(ref.Qualifier+"."+ref.Name, exposedNames(matches)...)
		}
	}

	var matches []exposedColumn
	var matchedEntry aliasEntry
	var candidateNames []string
	for _, entry := range candidates {
		found := entry.find(ref.Name)
		if len(found) > 0 {
			candidateNames = append(candidateNames, entry.name)
		}
		for range found {
			matchedEntry = entry
		}
		matches = append(matches, found...)
	}
	switch len(matches) {
	case 0:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.name
		}
		return nil, columnNotFound(ref.Name, names...)
	case 1:
		for _, t := range matchedEntry.tables {
			use(t)
		}
		return matches[0].cols, nil
	default:
		return nil, columnNotFound(ref.Name, candidateNames...)
	}
}

func exposedNames(cols []exposedColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

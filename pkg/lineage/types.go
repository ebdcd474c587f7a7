package lineage

import "github.com/tokern/data-lineage/pkg/catalog"

// ColRef is the core-internal reference extracted from a ColumnRef AST
// node (spec.md §3): either bare ("c"), qualified ("t.c"), a bare star
// ("*") or a qualified star ("t.*"). It never touches the catalog; the
// binder resolves it.
type ColRef struct {
	Qualifier string // "" when unqualified
	Name      string // "" when Star is true and unqualified (bare "*")
	Star      bool
}

func (c ColRef) Qualified() bool { return c.Qualifier != "" }

// ProjectedExpr is one projected output of a SELECT list: an optional
// alias, the ordered column references the expression reads, and
// whether the expression is exactly a star reference.
type ProjectedExpr struct {
	Alias   string // "" if the ResTarget supplied none
	Columns []ColRef
	IsStar  bool
}

// BoundColumn is a fully resolved projected output: its exposed alias
// and the catalog columns that feed it (spec.md §3). Columns is empty
// for a projection that reads no column at all, such as a literal; such
// a slot still pairs positionally with a target column but yields no
// edge.
// Columns preserves the binder's insertion order, which is the order
// lineage edges are written in (spec.md §5 ordering guarantees).
type BoundColumn struct {
	Alias   string
	Columns []catalog.Column
}

// BoundDML is the fully resolved shape of one INSERT-SELECT,
// SELECT-INTO or CTAS statement, ready for edge extraction.
type BoundDML struct {
	TargetTable   catalog.Table
	TargetColumns []catalog.Column
	SourceColumns []BoundColumn
	SourceTables  []catalog.Table
}

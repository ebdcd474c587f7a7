package lineage

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// TableRef is a source appearing in a FROM/JOIN tree: either a RangeVar
// (a named table) or a RangeSubselect (an inline subquery, always
// carrying an alias).
type TableRef struct {
	RangeVar       *pg_query.RangeVar
	RangeSubselect *pg_query.RangeSubselect
}

func (t TableRef) IsSubselect() bool { return t.RangeSubselect != nil }

// WithEntry is one CTE body as visited independently of where it's
// referenced from (spec.md §4.3's with_aliases map).
type WithEntry struct {
	Name        string
	Sources     []TableRef
	Projections []ProjectedExpr
}

// QueryShape is the Table/Projection Visitor's output for one SelectStmt
// (spec.md §4.3). WithAliases preserves the CTEs' textual order, which
// §4.4.3 binds in; once bound, a CTE is looked up by name through the
// binder's alias environment, not through this slice.
type QueryShape struct {
	Sources     []TableRef
	Projections []ProjectedExpr
	WithAliases []WithEntry
}

// visitSelect walks a SelectStmt and produces its QueryShape. It does
// not recurse into set operations (UNION/INTERSECT/EXCEPT): those have
// no target list of their own and contribute no projections under this
// model (non-goal: query shapes beyond single-body SELECT/INSERT/CTAS).
func visitSelect(d dialect, stmt *pg_query.SelectStmt) QueryShape {
	shape := QueryShape{}
	if stmt == nil {
		return shape
	}

	shape.WithAliases = ctesOf(d, stmt.GetWithClause())
	shape.Sources = flattenFrom(stmt.GetFromClause())
	shape.Projections = visitTargetList(d, stmt.GetTargetList())
	return shape
}

// ctesOf visits a WithClause's CTEs in textual order. It is also called
// directly by the dispatcher for INSERT ... SELECT statements, where
// Postgres attaches WITH to the InsertStmt rather than to its nested
// SelectStmt.
func ctesOf(d dialect, wc *pg_query.WithClause) []WithEntry {
	if wc == nil {
		return nil
	}
	var out []WithEntry
	for _, cte := range wc.GetCtes() {
		c := cte.GetCommonTableExpr()
		if c == nil {
			continue
		}
		inner := c.GetCtequery().GetSelectStmt()
		innerShape := visitSelect(d, inner)
		out = append(out, WithEntry{
			Name:        c.GetCtename(),
			Sources:     innerShape.Sources,
			Projections: innerShape.Projections,
		})
	}
	return out
}

// flattenFrom walks the FROM clause, flattening JoinExprs left-then-
// right, in the order each RangeVar/RangeSubselect is encountered
// (spec.md §4.3).
func flattenFrom(from []*pg_query.Node) []TableRef {
	var out []TableRef
	for _, n := range from {
		out = append(out, flattenFromNode(n)...)
	}
	return out
}

func flattenFromNode(n *pg_query.Node) []TableRef {
	if n == nil {
		return nil
	}
	switch NodeTag(n) {
	case TagJoinExpr:
		je := n.GetJoinExpr()
		return append(flattenFromNode(je.GetLarg()), flattenFromNode(je.GetRarg())...)
	case TagRangeVar:
		return []TableRef{{RangeVar: n.GetRangeVar()}}
	case TagRangeSubselect:
		return []TableRef{{RangeSubselect: n.GetRangeSubselect()}}
	default:
		return nil
	}
}

// visitTargetList turns a SELECT's target list into ProjectedExprs. A
// bare top-level "SELECT *" is a single ResTarget whose val is an AStar
// ColumnRef; it naturally yields the single-star ProjectedExpr spec.md
// §4.3 calls for.
func visitTargetList(d dialect, targets []*pg_query.Node) []ProjectedExpr {
	out := make([]ProjectedExpr, 0, len(targets))
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		out = append(out, visitProjected(d, rt.GetName(), rt.GetVal()))
	}
	return out
}

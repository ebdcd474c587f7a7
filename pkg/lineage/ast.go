package lineage

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Tag is the closed set of node kinds the analyzer cares about (spec.md
// §4.1). Every other incoming node type collapses to TagOther; visitors
// that don't special-case a tag fall back to descending into its
// children, so unknown statement shapes never panic, they just yield
// no lineage.
type Tag int

const (
	TagOther Tag = iota
	TagRawStmt
	TagSelectStmt
	TagInsertStmt
	TagCreateTableAsStmt
	TagIntoClause
	TagWithClause
	TagCommonTableExpr
	TagRangeVar
	TagRangeSubselect
	TagJoinExpr
	TagResTarget
	TagColumnRef
	TagAlias
	TagAStar
	TagString
	TagInteger
	TagFuncCall
	TagTypeCast
	TagAExpr
)

// NodeTag returns the closed tag for a parsed node. nil resolves to
// TagOther so callers never need a nil check before switching on it.
func NodeTag(n *pg_query.Node) Tag {
	if n == nil {
		return TagOther
	}
	switch {
	case n.GetRawStmt() != nil:
		return TagRawStmt
	case n.GetIntoClause() != nil:
		return TagIntoClause
	case n.GetWithClause() != nil:
		return TagWithClause
	case n.GetAlias() != nil:
		return TagAlias
	case n.GetSelectStmt() != nil:
		return TagSelectStmt
	case n.GetInsertStmt() != nil:
		return TagInsertStmt
	case n.GetCreateTableAsStmt() != nil:
		return TagCreateTableAsStmt
	case n.GetRangeVar() != nil:
		return TagRangeVar
	case n.GetRangeSubselect() != nil:
		return TagRangeSubselect
	case n.GetJoinExpr() != nil:
		return TagJoinExpr
	case n.GetResTarget() != nil:
		return TagResTarget
	case n.GetColumnRef() != nil:
		return TagColumnRef
	case n.GetAStar() != nil:
		return TagAStar
	case n.GetString_() != nil:
		return TagString
	case n.GetInteger() != nil:
		return TagInteger
	case n.GetFuncCall() != nil:
		return TagFuncCall
	case n.GetTypeCast() != nil:
		return TagTypeCast
	case n.GetAExpr() != nil:
		return TagAExpr
	case n.GetCommonTableExpr() != nil:
		return TagCommonTableExpr
	default:
		return TagOther
	}
}

// children returns the generic child list of a node for the "any other
// expression node: descend into all children" fallback rule (spec.md
// §4.2). It only needs to know about container-shaped expression nodes;
// ColumnRef, String and A_Star are leaves the expression visitor
// special-cases before ever calling this.
func children(n *pg_query.Node) []*pg_query.Node {
	if n == nil {
		return nil
	}
	var out []*pg_query.Node
	switch {
	case n.GetBoolExpr() != nil:
		out = append(out, n.GetBoolExpr().GetArgs()...)
	case n.GetCaseExpr() != nil:
		ce := n.GetCaseExpr()
		for _, w := range ce.GetArgs() {
			if cw := w.GetCaseWhen(); cw != nil {
				out = append(out, cw.GetExpr(), cw.GetResult())
			}
		}
		if ce.GetArg() != nil {
			out = append(out, ce.GetArg())
		}
		if ce.GetDefresult() != nil {
			out = append(out, ce.GetDefresult())
		}
	case n.GetCoalesceExpr() != nil:
		out = append(out, n.GetCoalesceExpr().GetArgs()...)
	case n.GetMinMaxExpr() != nil:
		out = append(out, n.GetMinMaxExpr().GetArgs()...)
	case n.GetNullTest() != nil:
		out = append(out, n.GetNullTest().GetArg())
	case n.GetBooleanTest() != nil:
		out = append(out, n.GetBooleanTest().GetArg())
	case n.GetRowExpr() != nil:
		out = append(out, n.GetRowExpr().GetArgs()...)
	case n.GetAArrayExpr() != nil:
		out = append(out, n.GetAArrayExpr().GetElements()...)
	case n.GetAIndirection() != nil:
		if n.GetAIndirection().GetArg() != nil {
			out = append(out, n.GetAIndirection().GetArg())
		}
	case n.GetCollateClause() != nil:
		out = append(out, n.GetCollateClause().GetArg())
	case n.GetSubLink() != nil:
		// Scalar subqueries do not contribute column lineage in this
		// model (spec.md non-goals); never descend into them.
	}
	return pruneNil(out)
}

func pruneNil(nodes []*pg_query.Node) []*pg_query.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// stringValue extracts the text of a String (or A_Star-less ColumnRef
// field) node. Returns "", false for anything else.
func stringValue(n *pg_query.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	if s := n.GetString_(); s != nil {
		return s.GetSval(), true
	}
	return "", false
}

func isStarNode(n *pg_query.Node) bool {
	return n != nil && n.GetAStar() != nil
}

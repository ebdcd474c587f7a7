package lineage

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// dialect selects the descent rule a FuncCall gets (spec.md §4.2). The
// default dialect descends into every argument; Redshift-like sources
// special-case dateadd.
type dialect int

const (
	dialectGeneric dialect = iota
	dialectRedshift
)

func dialectFor(sourceType catalog.SourceType) dialect {
	if sourceType == catalog.SourceRedshift {
		return dialectRedshift
	}
	return dialectGeneric
}

// exprVisitor walks one projected expression subtree and collects the
// ordered ColumnRefs it reads (spec.md §4.2). It carries no state across
// expressions: callers construct one per ResTarget.
type exprVisitor struct {
	dialect dialect
	columns []ColRef
	isStar  bool
}

func newExprVisitor(d dialect) *exprVisitor {
	return &exprVisitor{dialect: d}
}

// visitProjected walks a ResTarget's value expression (or a bare
// top-level AStar) and returns the resulting ProjectedExpr. alias is the
// ResTarget's own alias, passed through unresolved.
func visitProjected(d dialect, alias string, val *pg_query.Node) ProjectedExpr {
	v := newExprVisitor(d)
	v.visit(val)
	return ProjectedExpr{
		Alias:   alias,
		Columns: v.columns,
		IsStar:  v.isStar,
	}
}

func (v *exprVisitor) visit(n *pg_query.Node) {
	if n == nil {
		return
	}
	switch NodeTag(n) {
	case TagColumnRef:
		ref := v.columnRef(n.GetColumnRef())
		v.columns = append(v.columns, ref)
		if ref.Star {
			v.isStar = true
		}
		// ColumnRef is a leaf: never descend further.
	case TagAStar:
		v.isStar = true
		v.columns = append(v.columns, ColRef{Star: true})
	case TagFuncCall:
		v.visitFuncCall(n.GetFuncCall())
	case TagTypeCast:
		v.visit(n.GetTypeCast().GetArg())
	case TagAExpr:
		ae := n.GetAExpr()
		v.visit(ae.GetLexpr())
		v.visit(ae.GetRexpr())
	default:
		for _, child := range children(n) {
			v.visit(child)
		}
	}
}

func (v *exprVisitor) visitFuncCall(fc *pg_query.FuncCall) {
	if v.dialect == dialectRedshift && funcName(fc) == "dateadd" {
		args := fc.GetArgs()
		if len(args) >= 3 {
			v.visit(args[2])
		}
		return
	}
	for _, arg := range fc.GetArgs() {
		v.visit(arg)
	}
}

func funcName(fc *pg_query.FuncCall) string {
	names := fc.GetFuncname()
	if len(names) == 0 {
		return ""
	}
	if s, ok := stringValue(names[len(names)-1]); ok {
		return s
	}
	return ""
}

// columnRef turns a ColumnRef's Fields list into a ColRef: one field
// means a bare name or a bare star, two means qualifier.name or
// qualifier.*.
func (v *exprVisitor) columnRef(cr *pg_query.ColumnRef) ColRef {
	var parts []string
	star := false
	for _, f := range cr.GetFields() {
		if isStarNode(f) {
			star = true
			continue
		}
		if s, ok := stringValue(f); ok {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return ColRef{Star: star}
	case 1:
		if star {
			return ColRef{Qualifier: parts[0], Star: true}
		}
		return ColRef{Name: parts[0]}
	default:
		return ColRef{Qualifier: parts[0], Name: parts[len(parts)-1], Star: star}
	}
}

package lineage

import (
	"go.uber.org/zap"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// BatchResult pairs one input query with its outcome.
type BatchResult struct {
	Query  string
	Result ExtractionResult
	Err    error
}

// ParseAll implements the batch front door of spec.md §4.7 (grounded in
// the original's parse_queries): syntax failures on one query are
// logged and that query is skipped; semantic/binding failures abort
// only that query's extraction. Either way the batch keeps going, and
// results preserve input order.
func (a *Analyzer) ParseAll(source catalog.Source, queries []string, opts ...Option) []BatchResult {
	out := make([]BatchResult, 0, len(queries))
	for _, q := range queries {
		res, err := a.AnalyzeQuery(source, q, opts...)
		if err != nil {
			if lerr, ok := err.(*Error); ok && lerr.Kind == KindSyntaxError {
				a.Logger.Info("skipping query with syntax error", zap.String("query", q), zap.Error(err))
			}
			out = append(out, BatchResult{Query: q, Err: err})
			continue
		}
		out = append(out, BatchResult{Query: q, Result: res})
	}
	return out
}

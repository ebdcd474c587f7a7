package lineage

import (
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/tokern/data-lineage/pkg/catalog"
)

// ExtractionResult summarizes one completed extraction for logging and
// tests. RunID is a fresh identifier per extraction call, not a catalog
// key: it exists so a caller can correlate one AnalyzeQuery invocation
// across its own logs even when the Job/JobExecution it wrote are
// shared with other runs (same job name, idempotent edges).
type ExtractionResult struct {
	RunID        string
	Job          catalog.Job
	JobExecution catalog.JobExecution
	EdgeCount    int
}

// extract implements the Lineage Extractor (spec.md §4.6): it creates
// the Job and JobExecution, then writes one edge per (source column,
// target column) pair, positionally paired by projection order.
func extract(cat catalog.Catalog, source catalog.Source, dml BoundDML, query string, name string, startedAt, endedAt time.Time) (ExtractionResult, error) {
	runID := uuid.NewString()
	if name == "" {
		name = hashJobName(query)
	}

	job, err := cat.AddJob(source, name, map[string]string{"query": query})
	if err != nil {
		return ExtractionResult{}, storeErrorf(err, "creating job %q", name)
	}

	exec, err := cat.AddJobExecution(job, startedAt, endedAt, catalog.StatusSuccess)
	if err != nil {
		return ExtractionResult{}, storeErrorf(err, "creating job execution for job %q", name)
	}

	edges := 0
	for i, target := range dml.TargetColumns {
		for _, src := range dml.SourceColumns[i].Columns {
			if _, err := cat.AddColumnLineage(src, target, exec, map[string]string{}); err != nil {
				return ExtractionResult{}, storeErrorf(err, "writing lineage edge %s -> %s", src.Name, target.Name)
			}
			edges++
		}
	}

	return ExtractionResult{RunID: runID, Job: job, JobExecution: exec, EdgeCount: edges}, nil
}

// hashJobName deterministically derives a job name from query text when
// the caller supplies none, so repeated extraction of the same query
// text resolves to the same Job (spec.md §4.6).
func hashJobName(query string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(query))
	return "query_" + uintToBase36(h.Sum64())
}

func uintToBase36(v uint64) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [13]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%36]
		v /= 36
	}
	return string(buf[i:])
}

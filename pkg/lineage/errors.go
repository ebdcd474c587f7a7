package lineage

import "fmt"

// Kind is the closed set of failure kinds from spec.md §7.
type Kind int

const (
	// SyntaxError is raised by the parser adapter; at batch scope the
	// offending query is logged and skipped (see batch.go).
	KindSyntaxError Kind = iota
	KindSourceNotFound
	KindSchemaNotFound
	KindTableNotFound
	KindColumnNotFound
	// KindSemanticError covers structurally valid SQL the dispatcher
	// cannot treat as lineage-bearing DML, arity mismatches, and CTAS
	// with no default schema.
	KindSemanticError
	// KindStoreError wraps a catalog I/O failure; it aborts the
	// single query's transaction.
	KindStoreError
)

func (k Kind) String() string {
	switch k {
	case KindSyntaxError:
		return "SyntaxError"
	case KindSourceNotFound:
		return "SourceNotFound"
	case KindSchemaNotFound:
		return "SchemaNotFound"
	case KindTableNotFound:
		return "TableNotFound"
	case KindColumnNotFound:
		return "ColumnNotFound"
	case KindSemanticError:
		return "SemanticError"
	case KindStoreError:
		return "StoreError"
	default:
		return "UnknownError"
	}
}

// Error is the single error type the analyzer returns. AmbiguousReference
// from spec.md §7 is not a distinct Kind: an ambiguous column reference
// is a ColumnNotFound carrying more than one Candidates entry. An
// ambiguous table reference is a TableNotFound with no Candidates,
// because catalog.Catalog.SearchTable reports only ErrAmbiguous, not the
// matching tables.
type Error struct {
	Kind       Kind
	Message    string
	Sought     string
	Candidates []string
	cause      error
}

func (e *Error) Error() string {
	if e.Sought == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if len(e.Candidates) > 1 {
		return fmt.Sprintf("%s: %s (sought %q, candidates %v)", e.Kind, e.Message, e.Sought, e.Candidates)
	}
	return fmt.Sprintf("%s: %s (sought %q)", e.Kind, e.Message, e.Sought)
}

func (e *Error) Unwrap() error { return e.cause }

// Ambiguous reports whether this error carries more than one candidate
// where exactly one was required. It returns false for an ambiguous
// table reference, which carries no candidates (see Error).
func (e *Error) Ambiguous() bool { return len(e.Candidates) > 1 }

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) withSought(sought string) *Error {
	e.Sought = sought
	return e
}

func (e *Error) withCandidates(candidates []string) *Error {
	e.Candidates = candidates
	return e
}

func (e *Error) withCause(cause error) *Error {
	e.cause = cause
	return e
}

func syntaxErrorf(format string, args ...any) *Error {
	return newErr(KindSyntaxError, fmt.Sprintf(format, args...))
}

func tableNotFound(sought string, candidates ...string) *Error {
	return newErr(KindTableNotFound, "table not found").withSought(sought).withCandidates(candidates)
}

func columnNotFound(sought string, candidates ...string) *Error {
	return newErr(KindColumnNotFound, "column not found").withSought(sought).withCandidates(candidates)
}

func schemaNotFound(sought string) *Error {
	return newErr(KindSchemaNotFound, "schema not found").withSought(sought)
}

func sourceNotFound(sought string) *Error {
	return newErr(KindSourceNotFound, "source not found").withSought(sought)
}

func semanticErrorf(format string, args ...any) *Error {
	return newErr(KindSemanticError, fmt.Sprintf(format, args...))
}

func storeErrorf(cause error, format string, args ...any) *Error {
	return newErr(KindStoreError, fmt.Sprintf(format, args...)).withCause(cause)
}

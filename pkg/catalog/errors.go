package catalog

import "errors"

// ErrNotFound is returned by Catalog lookups when zero rows match.
var ErrNotFound = errors.New("catalog: not found")

// ErrAmbiguous is returned by Catalog lookups when more than one row
// matches an unqualified reference.
var ErrAmbiguous = errors.New("catalog: ambiguous reference")

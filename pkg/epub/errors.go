package epub

import "errors"

// Sentinel errors returned by the epub package. Validation failures wrap
// one of these so callers can classify with errors.Is while the message
// names the precise element or attribute involved.
var (
	// ErrStructure indicates a missing or invalid required element or
	// attribute in the container descriptor or package document. It is
	// always fatal to document construction.
	ErrStructure = errors.New("epub: invalid structure")

	// ErrOriginMismatch indicates a reference resolved outside the
	// package's origin. Fatal for manifest items and direct Resource
	// calls; in-content references are skipped instead.
	ErrOriginMismatch = errors.New("epub: reference outside package origin")

	// ErrNotFound indicates a referenced id or path is absent from the
	// relevant index.
	ErrNotFound = errors.New("epub: not found")

	// ErrIsDirectory indicates a read was attempted on a directory entry.
	ErrIsDirectory = errors.New("epub: entry is a directory")

	// ErrFallbackCycle indicates a manifest fallback chain contains a
	// circular reference.
	ErrFallbackCycle = errors.New("epub: fallback chain contains a cycle")

	// ErrUnsupportedResource indicates a resource type a consumer cannot
	// handle, e.g. a non-markup spine entry in a rendering context.
	ErrUnsupportedResource = errors.New("epub: unsupported resource type")
)

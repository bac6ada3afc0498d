// Package rfs implements the LINDI reference file system: the JSON document
// mapping Zarr-store keys to inline bytes or external byte-range references.
package rfs

import "errors"

// Error kinds from spec §7. Callers should match with errors.Is.
var (
	ErrNotFound             = errors.New("lindi: key not found")
	ErrCorruptReference     = errors.New("lindi: corrupt reference")
	ErrCorruptContainer     = errors.New("lindi: corrupt container")
	ErrReadOnly             = errors.New("lindi: store is read-only")
	ErrUnsupportedFeature   = errors.New("lindi: unsupported feature")
	ErrConsistencyViolation = errors.New("lindi: consistency violation")
)

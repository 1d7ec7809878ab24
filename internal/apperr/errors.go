// Package apperr defines the sentinel errors shared across rulesync packages.
// Callers wrap them with fmt.Errorf("...: %w", err) and test with errors.Is.
package apperr

import "errors"

var (
	// ErrStoreUnavailable means the store directory could not be enumerated.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound means the requested rule has no primary file.
	ErrNotFound = errors.New("not found")
	// ErrMetadataCorrupt marks a sidecar that exists but does not parse.
	// Readers log it and fall back to empty metadata.
	ErrMetadataCorrupt = errors.New("metadata corrupt")
	// ErrDestinationMissing means no marker directory was found for an import.
	ErrDestinationMissing = errors.New("destination missing")
	// ErrCopyFailed wraps I/O failures while copying a rule file.
	ErrCopyFailed     = errors.New("copy failed")
	ErrInvalidName    = errors.New("invalid rule name")
	ErrNoRules        = errors.New("no rules found")
	ErrNotInteractive = errors.New("not running in an interactive terminal")
)

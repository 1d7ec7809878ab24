// Package storage implements the rule store: a directory holding one primary
// file per rule plus an optional JSON sidecar with its metadata.
package storage

import "github.com/starford/rulesync/internal/models"

// Provider is the interface for rule store operations.
type Provider interface {
	// Dir returns the absolute store directory.
	Dir() string
	// List returns every rule in the store. Order follows the filesystem.
	List() ([]models.Rule, error)
	// Get returns the rule called name; ok is false when it does not exist.
	Get(name string) (rule models.Rule, ok bool, err error)
	// Save writes content and then the sidecar. The two writes are independent.
	Save(rule models.Rule, content []byte) error
	// Delete removes the primary file and the sidecar, tolerating either being absent.
	Delete(name string) error
	// ReadContent returns the full content of the primary file.
	ReadContent(name string) (string, error)
}

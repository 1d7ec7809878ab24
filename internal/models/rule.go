// Package models defines the domain types for rulesync.
package models

import "time"

// MetaSuffix is appended to a rule's file name to form its sidecar name.
const MetaSuffix = ".meta"

// Rule is one named resource in a store.
type Rule struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
}

// Metadata is the on-disk sidecar document. Absent values are written as null.
type Metadata struct {
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// MetadataOf builds the sidecar document for r.
func MetadataOf(r Rule) Metadata {
	m := Metadata{Tags: r.Tags}
	if r.Description != "" {
		d := r.Description
		m.Description = &d
	}
	return m
}

// Apply copies sidecar values onto r.
func (m Metadata) Apply(r *Rule) {
	if m.Description != nil {
		r.Description = *m.Description
	}
	r.Tags = m.Tags
}

// SyncEvent describes a change that happened to a rule.
type SyncEvent struct {
	Kind        string `json:"kind"` // "synced", "saved", "deleted", "imported"
	Name        string `json:"name"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
}

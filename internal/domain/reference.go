// Package domain contains the core entities of the rating collector.
package domain

// RefEntry is an (id, name) pair from the shared reference catalog.
// Institutions and topics are append-mostly and shared across all users.
type RefEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Institution is a rated organisation. Created on first mention by any
// user; never deleted or renamed. Names are globally unique and taken
// verbatim (case and whitespace significant).
type Institution = RefEntry

// Topic is a rated subject. Topic names are globally unique, not scoped
// to an institution; only the institution↔topic link scopes a topic.
type Topic = RefEntry

// Package storage writes merge artifacts into an output directory.
package storage

import "time"

// Entry describes one file in the output directory.
type Entry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for output directory operations.
type Provider interface {
	// Root returns the absolute output directory.
	Root() string
	// Path resolves name inside the output directory.
	Path(name string) (string, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
	// List returns the entries whose names match the glob pattern.
	List(pattern string) ([]Entry, error)
}

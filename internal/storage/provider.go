// Package storage defines the document directory abstraction used by the
// lab server.
package storage

import "time"

// DocumentInfo is a lightweight listing entry for a stored notebook.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for notebook document operations.
type Provider interface {
	// List returns metadata for every stored notebook.
	List() ([]DocumentInfo, error)
	// Read returns the raw document bytes for a notebook id.
	Read(id string) ([]byte, error)
	// Write atomically replaces the document for a notebook id.
	Write(id string, content []byte) error
	// Delete removes the document for a notebook id.
	Delete(id string) error
}

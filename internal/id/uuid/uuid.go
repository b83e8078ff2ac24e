// Package uuid generates identifiers for crawl runs.
package uuid

import (
	"github.com/google/uuid"
)

// Generator creates time-ordered run IDs.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a UUIDv7 so run IDs sort by start time. If the v7 source
// fails it falls back to a random UUIDv4; a run always gets an ID.
func (Generator) NewRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

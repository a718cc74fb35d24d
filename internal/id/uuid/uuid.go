// Package uuid generates identifiers for stored jobs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements jobs.IDGenerator with time-ordered UUIDv7 values, so
// IDs of jobs saved later sort after earlier ones.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. Handlers use it to reject
// malformed path IDs before touching the store.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}

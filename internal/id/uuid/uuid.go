// Package uuid generates time-ordered identifiers for jobs, runs, and
// records.
package uuid

import (
	"fmt"

	guuid "github.com/google/uuid"
)

// Generator produces UUIDv7 strings. The time-ordered prefix keeps
// database indexes append-friendly.
type Generator struct{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a fresh UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := guuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

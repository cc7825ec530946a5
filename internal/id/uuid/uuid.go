// Package uuid issues job identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator issues random (version 4) UUID strings.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh job ID.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether id is a canonical UUID string, letting callers reject
// malformed path parameters before a store lookup.
func Valid(id string) bool {
	if len(id) != 36 {
		return false
	}
	return uuid.Validate(id) == nil
}

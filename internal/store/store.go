// Package store persists the port to instruction-context mapping.
package store

import (
	"github.com/chaseai/chaseai/internal/model"
)

// Contexts is the full port to context mapping as persisted.
type Contexts map[uint16]model.InstructionContext

// Store is durable load/save of the whole mapping. SaveAll replaces
// everything previously saved.
type Store interface {
	LoadAll() (Contexts, error)
	SaveAll(Contexts) error
}

// Open returns the backend for driver ("json" or "sqlite") rooted at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "json":
		return NewFileStore(path), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

// UnknownDriverError is returned by Open for unsupported drivers.
type UnknownDriverError struct {
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return "unknown context store driver " + e.Driver
}

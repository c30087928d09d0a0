package distribution

import (
	"errors"
	"fmt"
)

// Common errors returned by the resolver and the catalog.
var (
	// ErrRepositoryNotFound matches every *RepositoryNotFoundError.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrConflict is returned when a distribution clashes with an existing one.
	ErrConflict = errors.New("distribution conflict")
)

// RepositoryNotFoundError reports a request path no distribution serves.
type RepositoryNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository %q not found", e.Name)
}

// Is makes errors.Is(err, ErrRepositoryNotFound) hold.
func (e *RepositoryNotFoundError) Is(target error) bool {
	return target == ErrRepositoryNotFound
}

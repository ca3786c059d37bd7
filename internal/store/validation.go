package store

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// DuplicateIndividualError is returned when an individual ID is already taken.
type DuplicateIndividualError struct {
	ID string
}

func (e *DuplicateIndividualError) Error() string {
	return fmt.Sprintf("individual already exists: %s", e.ID)
}

func validateRelation(rel Relation) error {
	switch {
	case rel.Subject == "":
		return fmt.Errorf("relation subject is required")
	case rel.Predicate == "":
		return fmt.Errorf("relation predicate is required")
	case rel.Object == "":
		return fmt.Errorf("relation object is required")
	}
	return nil
}

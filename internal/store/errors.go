package store

import "fmt"

// DuplicateKeyError reports a unique constraint violation in the memory backend
type DuplicateKeyError struct {
	Table string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("store: duplicate key in %s", e.Table)
}

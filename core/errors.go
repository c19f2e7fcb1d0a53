package core

import (
	"errors"
	"fmt"
)

// ErrUserNotFound reports that the referenced user record does not exist.
// Fatal to the single operation; no mutation is performed.
var ErrUserNotFound = errors.New("user not found")

// ErrUnknownAction reports an action tag missing from the XP table.
var ErrUnknownAction = errors.New("unknown action")

// ErrDuplicateGrant reports an insert for an already-held badge. Stores use
// it as the uniqueness backstop; the engine treats it as "already earned".
var ErrDuplicateGrant = errors.New("badge already granted")

// StorageError wraps a persistence failure. The prior state is unchanged;
// the caller may retry the whole action.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is already a domain sentinel.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrDuplicateGrant) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// CounterError reports that one badge's counter source was unreachable
// during evaluation. Non-fatal: that badge is skipped for the pass.
type CounterError struct {
	Badge           BadgeID
	RequirementType RequirementType
	Err             error
}

func (e CounterError) Error() string {
	return fmt.Sprintf("counter %s for badge %s: %v", e.RequirementType, e.Badge, e.Err)
}

func (e CounterError) Unwrap() error { return e.Err }

package filetree

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrLocked          = errors.New("locked")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnsupported     = errors.New("unsupported")
)

// LockedError is returned when another editing session holds the node's lock.
// It matches ErrLocked with errors.Is.
type LockedError struct {
	NodeID string
	Holder string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("node %s is locked by %s", e.NodeID, e.Holder)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// LockHolder extracts the username holding the lock from a Locked failure.
func LockHolder(err error) (string, bool) {
	var lockedErr *LockedError
	if errors.As(err, &lockedErr) {
		return lockedErr.Holder, true
	}
	return "", false
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrForbidden}, args...)...)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

package backend

import (
	"fmt"

	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/pkg/errors"
)

var (
	// ErrValidation marks an invalid object name or version. It is returned
	// before any I/O happens.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing object, version or metadata record.
	ErrNotFound = errors.New("not found")
	// ErrTransfer marks an I/O failure of the underlying store.
	ErrTransfer = errors.New("transfer failed")
	// ErrLockConflict marks a shared/exclusive lock mode conflict.
	ErrLockConflict = lock.ErrConflict
)

// ValidationError describes why a name or version was rejected.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransferError wraps a store failure with the operation and key involved.
type TransferError struct {
	Op  string
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransfer
}

func transferError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &TransferError{Op: op, Key: key, Err: err}
}

// IsNotFound reports whether err marks a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err marks an invalid name or version.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

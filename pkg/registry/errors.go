package registry

import (
	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/pkg/errors"
)

var (
	ErrValidation   = backend.ErrValidation
	ErrNotFound     = backend.ErrNotFound
	ErrLockConflict = backend.ErrLockConflict
	ErrTransfer     = backend.ErrTransfer

	// ErrLockTimeout is returned by Save when the exclusive lock on the
	// name could not be taken within the lock timeout.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrUnknownMaterializer is returned for a materializer id missing in
	// the catalog of the registry.
	ErrUnknownMaterializer = errors.New("unknown materializer")
)

type (
	ValidationError = backend.ValidationError
	TransferError   = backend.TransferError
)

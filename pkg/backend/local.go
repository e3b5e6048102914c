package backend

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Local keeps objects in a directory on the local filesystem.
type Local struct {
	*base
	storage *FilesystemStorage
}

func NewLocal(l *zap.Logger, dir string, opts ...Option) (*Local, error) {
	storage, err := NewFilesystemStorage(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open local backend at %s", dir)
	}
	return &Local{
		base:    newBase(l, "local", storage, opts...),
		storage: storage,
	}, nil
}

// Dir returns the absolute root directory.
func (b *Local) Dir() string {
	return b.storage.baseDir
}

var _ Backend = (*Local)(nil)

package backend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/pkg/errors"
)

const tempFilePattern = ".objectregistry-*.tmp"

// FilesystemStorage implements Storage using the local filesystem.
//
// Creates of conditional records are atomic across processes on one host
// (hard link into place). Replacing and deleting a record is serialized
// within the process only.
type FilesystemStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFilesystemStorage creates a new filesystem-backed storage.
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}
	return &FilesystemStorage{baseDir: abs}, nil
}

func (f *FilesystemStorage) Write(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write(f.path(key), data)
}

func (f *FilesystemStorage) Read(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return os.ReadFile(f.path(key))
}

// List walks the base directory recursively and skips directories that
// cannot contain a key with the given prefix.
func (f *FilesystemStorage) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var keys []string
	err := filepath.WalkDir(f.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == f.baseDir {
			return nil
		}
		rel, err := filepath.Rel(f.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			dir := key + "/"
			if !strings.HasPrefix(dir, prefix) && !strings.HasPrefix(prefix, dir) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTempFile(d.Name()) {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the key and every directory it leaves empty.
func (f *FilesystemStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.remove(f.path(key))
}

func (f *FilesystemStorage) ReadGeneration(_ context.Context, key string) ([]byte, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, "", err
	}
	return data, contentGeneration(data), nil
}

func (f *FilesystemStorage) WriteIfGeneration(_ context.Context, key string, data []byte, generation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	if generation == "" {
		return f.create(path, data)
	}
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return lock.ErrGenerationMismatch
	} else if err != nil {
		return err
	}
	if contentGeneration(current) != generation {
		return lock.ErrGenerationMismatch
	}
	return f.write(path, data)
}

func (f *FilesystemStorage) DeleteIfGeneration(_ context.Context, key string, generation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if contentGeneration(current) != generation {
		return lock.ErrGenerationMismatch
	}
	return f.remove(path)
}

func (f *FilesystemStorage) URI(key string) string {
	return "file://" + filepath.ToSlash(f.path(key))
}

func (f *FilesystemStorage) Close() error {
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (f *FilesystemStorage) path(key string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(key))
}

// write replaces path atomically through a temp file in the same directory.
func (f *FilesystemStorage) write(path string, data []byte) error {
	tmp, err := f.temp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// create links a fully written temp file into place, which fails if path
// already exists.
func (f *FilesystemStorage) create(path string, data []byte) error {
	tmp, err := f.temp(path, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if os.IsExist(err) {
			return lock.ErrGenerationMismatch
		}
		return err
	}
	return nil
}

func (f *FilesystemStorage) temp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", err
	}
	if err := os.Chmod(file.Name(), 0o600); err != nil {
		_ = os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

func (f *FilesystemStorage) remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	return errors.Wrap(f.removeEmptyParents(filepath.Dir(path)), "failed to remove empty directories")
}

// removeEmptyParents walks up from dir and removes empty directories until
// it reaches the base directory or a non-empty one.
func (f *FilesystemStorage) removeEmptyParents(dir string) error {
	for dir != f.baseDir && strings.HasPrefix(dir, f.baseDir+string(filepath.Separator)) {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			dir = filepath.Dir(dir)
			continue
		} else if err != nil {
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			// a concurrent writer may have just created a file in dir
			if isNotEmpty(dir) {
				return nil
			}
			return err
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

func isNotEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".objectregistry-") && strings.HasSuffix(name, ".tmp")
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/metrics"
)

// FileBackend implements a storage backend using the local file system.
// Every key is a file directly under the base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory,
// creating it if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the file stored under key.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, key string) (data []byte, err error) {
	defer func() { metrics.RecordStorage("file", metrics.OpFetch, err) }()

	if err := interfaces.ValidateKey(key); err != nil {
		return nil, err
	}

	filePath := filepath.Join(b.baseDir, key)
	data, err = os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data to a temporary file in the base directory and renames
// it over key, so readers never see a partially written value.
func (b *FileBackend) Store(ctx context.Context, key string, data []byte) (err error) {
	defer func() { metrics.RecordStorage("file", metrics.OpStore, err) }()

	if err := interfaces.ValidateKey(key); err != nil {
		return err
	}

	filePath := filepath.Join(b.baseDir, key)
	if err := WriteFileAtomic(filePath, data, 0600); err != nil {
		return err
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// WriteFileAtomic writes data to a sibling temporary file, syncs it and
// renames it over path. On failure the temporary file is removed and path is
// left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpName, err := stageFile(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// WriteFilesAtomic stages every file before renaming any of them into
// place. If staging fails nothing is written; if a rename fails the files
// already renamed are removed again.
func WriteFilesAtomic(files map[string][]byte, perm os.FileMode) error {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	staged := make(map[string]string, len(paths))
	discard := func() {
		for _, tmpName := range staged {
			os.Remove(tmpName)
		}
	}

	for _, path := range paths {
		tmpName, err := stageFile(path, files[path], perm)
		if err != nil {
			discard()
			return err
		}
		staged[path] = tmpName
	}

	for i, path := range paths {
		if err := os.Rename(staged[path], path); err != nil {
			removePaths(paths[:i])
			discard()
			return fmt.Errorf("failed to rename %s: %w", path, err)
		}
		delete(staged, path)
	}
	return nil
}

// RemoveFiles takes back a set committed by WriteFilesAtomic. Missing files
// are ignored.
func RemoveFiles(files map[string][]byte) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	removePaths(paths)
}

func removePaths(paths []string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func stageFile(path string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return tmpName, nil
}

package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/filex"
)

const tmpSuffix = ".tmp"

// DiskStore keeps blobs as plain files in a single flat directory.
type DiskStore struct {
	dataDir string
}

// NewDiskStore creates the data directory if needed and returns a store
// rooted at it.
func NewDiskStore(dataDir string) (*DiskStore, error) {
	abs, err := filex.EnsureDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return &DiskStore{dataDir: abs}, nil
}

// Save streams the reader into a temp file, fsyncs it and atomically renames
// it into place, so a crashed upload never leaves a readable partial blob.
func (s *DiskStore) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	fullPath := filepath.Join(s.dataDir, name)
	tmpPath := fullPath + tmpSuffix

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create temp for %s: %w", common.ErrStorage, name, err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: write %s: %w", common.ErrStorage, name, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: fsync %s: %w", common.ErrStorage, name, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: close %s: %w", common.ErrStorage, name, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: rename %s: %w", common.ErrStorage, name, err)
	}

	return size, nil
}

func (s *DiskStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", common.ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, name, err)
	}
	return f, nil
}

func (s *DiskStore) Delete(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dataDir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %s: %w", common.ErrStorage, name, err)
	}
	return nil
}

func (s *DiskStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dataDir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", common.ErrStorage, name, err)
}

// List skips in-flight temp files; everything else in the directory is a blob.
func (s *DiskStore) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir: %w", common.ErrStorage, err)
	}

	var objects []Object
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: stat %s: %w", common.ErrStorage, e.Name(), err)
		}
		objects = append(objects, Object{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}

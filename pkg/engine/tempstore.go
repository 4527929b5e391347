package engine

import (
	"context"
	"io"
	"os"

	"github.com/gramforge/gramforge/pkg/errors"
)

// DiskTempStore is the default TempStore, backed by files created under a
// configurable directory via os.CreateTemp.
type DiskTempStore struct {
	dir string
}

// NewDiskTempStore creates a store writing under dir; an empty dir uses the
// OS temporary directory.
func NewDiskTempStore(dir string) *DiskTempStore {
	return &DiskTempStore{dir: dir}
}

// Create opens a new spill segment for writing.
func (s *DiskTempStore) Create(ctx context.Context) (SegmentHandle, io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp(s.dir, "gramforge-spill-*.seg")
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to create spill segment")
	}
	return SegmentHandle(f.Name()), f, nil
}

// Open opens an existing spill segment for reading.
func (s *DiskTempStore) Open(ctx context.Context, handle SegmentHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(string(handle))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "failed to open spill segment")
	}
	return f, nil
}

// Remove deletes a spill segment. Removing an already-deleted segment is
// not an error; cleanup paths run unconditionally.
func (s *DiskTempStore) Remove(handle SegmentHandle) error {
	err := os.Remove(string(handle))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove spill segment")
	}
	return nil
}

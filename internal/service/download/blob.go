package download

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
)

// ErrBlobRevoked is returned when opening a released blob.
var ErrBlobRevoked = errors.New("blob revoked")

// Blob is a temporary, locally addressable copy of fetched content.
type Blob struct {
	ID          string
	URL         string
	ContentType string
	Size        int64
}

// BlobStore holds blobs until they are revoked.
type BlobStore interface {
	Create(r io.Reader, contentType string) (Blob, error)
	Open(b Blob) (io.ReadCloser, error)
	Revoke(b Blob) error
	Len() int
}

func newBlob(contentType string, size int64) Blob {
	id := uuid.NewString()
	return Blob{ID: id, URL: "blob:" + id, ContentType: contentType, Size: size}
}

// MemoryBlobs keeps blob content in memory.
type MemoryBlobs struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{data: make(map[string][]byte)}
}

func (m *MemoryBlobs) Create(r io.Reader, contentType string) (Blob, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, fmt.Errorf("read blob: %w", err)
	}
	b := newBlob(contentType, int64(len(raw)))

	m.mu.Lock()
	m.data[b.ID] = raw
	m.mu.Unlock()
	return b, nil
}

func (m *MemoryBlobs) Open(b Blob) (io.ReadCloser, error) {
	m.mu.RLock()
	raw, ok := m.data[b.ID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBlobRevoked
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *MemoryBlobs) Revoke(b Blob) error {
	m.mu.Lock()
	delete(m.data, b.ID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBlobs) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// TempDirBlobs spools blob content into files under one directory.
type TempDirBlobs struct {
	dir   string
	mu    sync.RWMutex
	paths map[string]string
}

// NewTempDirBlobs uses dir, or a fresh directory under os.TempDir when dir is empty.
func NewTempDirBlobs(dir string) (*TempDirBlobs, error) {
	if dir == "" {
		created, err := os.MkdirTemp("", "portal-blobs-*")
		if err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
		dir = created
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &TempDirBlobs{dir: dir, paths: make(map[string]string)}, nil
}

func (d *TempDirBlobs) Create(r io.Reader, contentType string) (Blob, error) {
	f, err := os.CreateTemp(d.dir, "blob-*")
	if err != nil {
		return Blob{}, fmt.Errorf("create blob file: %w", err)
	}
	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		return Blob{}, fmt.Errorf("spool blob: %w", errors.Join(copyErr, closeErr))
	}

	b := newBlob(contentType, size)
	d.mu.Lock()
	d.paths[b.ID] = f.Name()
	d.mu.Unlock()
	return b, nil
}

func (d *TempDirBlobs) Open(b Blob) (io.ReadCloser, error) {
	d.mu.RLock()
	path, ok := d.paths[b.ID]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrBlobRevoked
	}
	return os.Open(path)
}

func (d *TempDirBlobs) Revoke(b Blob) error {
	d.mu.Lock()
	path, ok := d.paths[b.ID]
	delete(d.paths, b.ID)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (d *TempDirBlobs) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.paths)
}

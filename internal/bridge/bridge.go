package bridge

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StoredFile is the metadata the storage collaborator returns; persisted
// verbatim as an attachment row.
type StoredFile struct {
	Name    string
	Mime    string
	Size    int64
	URL     string
	DriveID string
}

// Bridge stores raw file bytes under a logical category (e.g. "task/42") and
// returns storage metadata. Deleting stored bytes is the bridge's concern.
type Bridge interface {
	Store(ctx context.Context, category, name string, r io.Reader) (StoredFile, error)
}

// Disk is the local-disk bridge used for self-hosted deployments.
type Disk struct {
	Root string
}

func (d Disk) Store(ctx context.Context, category, name string, r io.Reader) (StoredFile, error) {
	if name == "" {
		return StoredFile{}, fmt.Errorf("file name is required")
	}
	root := d.Root
	if root == "" {
		root = "uploads"
	}
	dir := filepath.Join(root, filepath.Clean("/"+category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StoredFile{}, err
	}
	key := uuid.New().String() + filepath.Ext(name)
	path := filepath.Join(dir, key)
	f, err := os.Create(path)
	if err != nil {
		return StoredFile{}, err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return StoredFile{}, err
	}
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return StoredFile{
		Name:    name,
		Mime:    mt,
		Size:    size,
		URL:     "file://" + path,
		DriveID: key,
	}, nil
}

package internal

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lychee-technology/schemata"
)

// LocalStaticStore serves static endpoint files from
// <data_dir>/apps/<handle>/static.
type LocalStaticStore struct {
	layout appLayout
}

func NewLocalStaticStore(dataDir string) *LocalStaticStore {
	return &LocalStaticStore{layout: newAppLayout(dataDir)}
}

// resolve maps localfile into the application's static directory and
// refuses names that would escape it.
func (s *LocalStaticStore) resolve(handle, localfile string) (string, error) {
	root := s.layout.StaticDir(handle)
	p := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(localfile, "/")))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", schemata.NewNotFoundError("file", localfile)
	}
	return p, nil
}

func (s *LocalStaticStore) Open(_ context.Context, handle, localfile string) (io.ReadCloser, error) {
	p, err := s.resolve(handle, localfile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, schemata.NewNotFoundError("file", localfile)
		}
		return nil, schemata.NewStorageError("open static file", err)
	}
	return f, nil
}

func (s *LocalStaticStore) Put(_ context.Context, handle, localfile string, content io.Reader) error {
	p, err := s.resolve(handle, localfile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return schemata.NewStorageError("create static directory", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return schemata.NewStorageError("create static file", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return schemata.NewStorageError("write static file", err)
	}
	if err := f.Close(); err != nil {
		return schemata.NewStorageError("write static file", err)
	}
	return nil
}

var _ schemata.StaticStore = (*LocalStaticStore)(nil)

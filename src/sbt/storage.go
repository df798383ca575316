package sbt

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Storage holds the node blobs of a tree, keyed by name. Blobs are never overwritten once saved.
type Storage interface {
	Save(name string, data []byte) error
	Load(name string) ([]byte, error)
	Backend() string
	Path() string
}

// FSStorage keeps each blob as a file in a directory
type FSStorage struct {
	base   string
	subdir string
}

// NewFSStorage is the constructor for a FSStorage, blobs are kept in base/subdir
func NewFSStorage(base, subdir string) *FSStorage {
	return &FSStorage{base: base, subdir: subdir}
}

// Backend names the storage type in the manifest
func (fs *FSStorage) Backend() string {
	return "FSStorage"
}

// Path is the storage directory, relative to the manifest
func (fs *FSStorage) Path() string {
	return fs.subdir
}

// dir is the full path of the storage directory
func (fs *FSStorage) dir() string {
	return filepath.Join(fs.base, fs.subdir)
}

// Save writes a blob, it does nothing if the blob already exists
func (fs *FSStorage) Save(name string, data []byte) error {
	if err := os.MkdirAll(fs.dir(), 0755); err != nil {
		return errors.Wrap(ErrStorage, err.Error())
	}
	path := filepath.Join(fs.dir(), name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// write then rename, so that readers never see a partial blob
	tmp, err := os.CreateTemp(fs.dir(), ".tmp-"+name)
	if err != nil {
		return errors.Wrap(ErrStorage, err.Error())
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(ErrStorage, "could not write %s: %v", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(ErrStorage, "could not write %s: %v", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(ErrStorage, "could not write %s: %v", name, err)
	}
	return nil
}

// Load reads a blob
func (fs *FSStorage) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir(), name))
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "could not load %s: %v", name, err)
	}
	return data, nil
}

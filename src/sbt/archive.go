package sbt

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"
	"github.com/pkg/errors"
)

// archiveExts are the archive formats a tree can be bundled into
var archiveExts = []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz"}

// IsArchive reports if a path looks like a bundled tree
func IsArchive(path string) bool {
	for _, ext := range archiveExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Archive bundles a saved tree (manifest and storage directory) into a single archive, the format is taken from the extension of dest
func Archive(manifestPath, dest string) error {
	manifestPath = ManifestPath(manifestPath)
	storageDir := StorageDir(manifestPath)
	for _, path := range []string{manifestPath, storageDir} {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(ErrStorage, "can't archive tree: %v", err)
		}
	}
	if err := archiver.Archive([]string{manifestPath, storageDir}, dest); err != nil {
		return errors.Wrapf(ErrStorage, "could not archive tree: %v", err)
	}
	return nil
}

// LoadArchive unpacks a bundled tree into workDir and loads it
func LoadArchive(path, workDir string) (*SBT, error) {
	if err := archiver.Unarchive(path, workDir); err != nil {
		return nil, errors.Wrapf(ErrStorage, "could not unpack %s: %v", path, err)
	}
	manifests, err := filepath.Glob(filepath.Join(workDir, "*"+ManifestExt))
	if err != nil {
		return nil, errors.Wrap(ErrStorage, err.Error())
	}
	if len(manifests) != 1 {
		return nil, errors.Wrapf(ErrIndexFormat, "%s should hold a single tree (found %d)", path, len(manifests))
	}
	return Load(manifests[0])
}

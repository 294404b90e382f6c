// Package fsutil holds the file writes shared by the descriptor, manifest and
// binding outputs.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/wippyai/witdeps/errors"
)

// WriteFile writes data to a temporary file next to path and renames it
// into place, creating parent directories.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.IO("create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.IO("create temp file", dir, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.IO("write", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.IO("close", name, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return errors.IO("chmod", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.IO("rename", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsFile reports whether path is a regular file.
func IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Package fsutil holds filesystem helpers shared by the daemon and the
// storage helper.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
)

// DirSize returns the total size of regular files under root. A missing
// root has size zero.
func DirSize(root string) (int64, error) {
	if _, err := os.Lstat(root); os.IsNotExist(err) {
		return 0, nil
	}

	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "walk %s", root)
	}
	return total.Load(), nil
}

// FileSize returns the size of path, zero if it does not exist.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CopyFile copies src to dst, creating dst with mode and syncing it.
func CopyFile(src, dst string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "open source")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.Wrap(err, "create destination dir")
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, errors.Wrap(err, "create destination")
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, errors.Wrap(err, "copy")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, errors.Wrap(err, "sync")
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	return n, os.Chmod(dst, mode)
}

// FreeBytes reports the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (int64, error) {
	return freeBytes(path)
}

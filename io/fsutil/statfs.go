//go:build unix

package fsutil

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func freeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, errors.Wrapf(err, "statfs %s", path)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

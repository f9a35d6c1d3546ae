//go:build linux

package sync

import "golang.org/x/sys/unix"

// diskFree returns available bytes on the volume containing path. Bavail is
// the space available to unprivileged users, not the root-reserved total.
func diskFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:gosec // kernel guarantees non-negative values
}

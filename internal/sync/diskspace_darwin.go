//go:build darwin

package sync

import "golang.org/x/sys/unix"

// diskFree returns available bytes on the volume containing path.
func diskFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return stat.Bavail * uint64(stat.Bsize), nil
}

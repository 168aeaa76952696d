package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
)

// deviceInUse scans /proc fd links for another process holding the given
// device node open, fuser-style. Entries we cannot read (other users'
// processes when unprivileged) are skipped.
func deviceInUse(path string) (int, bool) {
	self := os.Getpid()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, false
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}
		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err == nil && target == path {
				return pid, true
			}
		}
	}
	return 0, false
}

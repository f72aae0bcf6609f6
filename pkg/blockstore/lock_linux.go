//go:build linux

package blockstore

import (
	"io"

	"golang.org/x/sys/unix"
)

// setLock places an open file description lock: such locks are owned by the open file,
// so two descriptors within the same process exclude each other, just like two processes do.
func setLock(fd uintptr, kind lockKind, start, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_RDLCK,
		Whence: io.SeekStart,
		Start:  start,
		Len:    length,
	}
	if kind == exclusiveLock {
		lk.Type = unix.F_WRLCK
	}
	return fcntlRetry(fd, &lk)
}

func unlock(fd uintptr, start, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
		Start:  start,
		Len:    length,
	}
	return fcntlRetry(fd, &lk)
}

func fcntlRetry(fd uintptr, lk *unix.Flock_t) error {
	for {
		err := unix.FcntlFlock(fd, unix.F_OFD_SETLKW, lk)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func linked(fd uintptr) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(fd), &st); err != nil {
		return false, err
	}
	return st.Nlink > 0, nil
}

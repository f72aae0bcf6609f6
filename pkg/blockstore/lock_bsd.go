//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package blockstore

import (
	"io"

	"golang.org/x/sys/unix"
)

// setLock places a classic POSIX record lock. These locks are owned by the process:
// exclusion between goroutines is provided by the digest locks.
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
		err := unix.FcntlFlock(fd, unix.F_SETLKW, lk)
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

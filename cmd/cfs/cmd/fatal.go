package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/oneconcern/cfs/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	// globals used to patch over calls to os.Exit() during test

	logFatalln = log.Fatalln
	logFatalf  = log.Fatalf
	osExit     = os.Exit
)

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
	} else {
		logFatalf("%v", fmt.Errorf(msg+": %w", err))
	}
}

func wrapFatalWithCodef(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	osExit(code)
}

// fatalStorageError exits with an errno-like status for the well-known error kinds of the storage engine
func fatalStorageError(msg string, err error) {
	switch {
	case errors.Is(err, status.ErrNotFound):
		wrapFatalWithCodef(int(unix.ENOENT), "%s: %v", msg, err)
	case errors.Is(err, status.ErrAlreadyExists):
		wrapFatalWithCodef(int(unix.EEXIST), "%s: %v", msg, err)
	case errors.Is(err, status.ErrInvalidPath):
		wrapFatalWithCodef(int(unix.EINVAL), "%s: %v", msg, err)
	default:
		wrapFatalln(msg, err)
	}
}

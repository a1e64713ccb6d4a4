//go:build !windows
// +build !windows

package process

import (
	"errors"
	"os"
	"syscall"
	"time"
)

func (pm *LSPProcessManager) gracePeriod() time.Duration {
	return pm.shutdownTimeout
}

// isExpectedKillError reports errors that just mean the process is already gone
func isExpectedKillError(err error) bool {
	if errors.Is(err, os.ErrProcessDone) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH || errno == syscall.ECHILD
	}
	return false
}

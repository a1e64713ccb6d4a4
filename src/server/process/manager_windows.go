//go:build windows
// +build windows

package process

import (
	"errors"
	"os"
	"time"
)

// Windows cannot deliver a polite stop to another process, so once the
// LSP exit notification has gone out the process is killed right away.
func (pm *LSPProcessManager) gracePeriod() time.Duration {
	return 100 * time.Millisecond
}

func isExpectedKillError(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

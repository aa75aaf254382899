package web

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// watcherStatus reports whether a watch-mode process recorded in the PID
// file is still alive. A stale PID file is removed.
func watcherStatus(pidPath string) (bool, int) {
	if pidPath == "" {
		return false, 0
	}

	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(pidPath)
		return false, 0
	}

	// Signal 0 probes for existence without delivering anything.
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		_ = os.Remove(pidPath)
		return false, 0
	}

	return true, pid
}

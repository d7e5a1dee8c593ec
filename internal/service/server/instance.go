package server

import (
	"context"
	"os"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/alarm-push/internal/logger"
)

// warnAboutPeers logs a warning for every other process running the same executable.
// The check is advisory; binding the port is what fails.
func warnAboutPeers(ctx context.Context) {
	self, err := ps.FindProcess(os.Getpid())
	if err != nil || self == nil {
		logger.DebugKV(ctx, "Unable to inspect current process", "error", err)

		return
	}

	processList, err := ps.Processes()
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)

		return
	}

	for _, pid := range findPeers(processList, self.Pid(), self.Executable()) {
		logger.WarnKV(ctx, "Another alarm server is running", "pid", pid, "executable", self.Executable())
	}
}

// findPeers returns the PIDs of processes other than self running executable.
func findPeers(processList []ps.Process, self int, executable string) []int {
	var peers []int

	for _, process := range processList {
		if process.Pid() == self {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		peers = append(peers, process.Pid())
	}

	return peers
}

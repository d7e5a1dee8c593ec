package server

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/oshokin/alarm-push/internal/logger"
)

const (
	notifyReady    = daemon.SdNotifyReady
	notifyStopping = daemon.SdNotifyStopping
	notifyWatchdog = daemon.SdNotifyWatchdog
)

// notify sends a state update to systemd. It does nothing outside a
// Type=notify unit, where NOTIFY_SOCKET is unset.
func notify(ctx context.Context, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.DebugKV(ctx, "Unable to notify systemd", "state", state, "error", err)
	}
}

// statusMessage builds a free-form STATUS= notification.
func statusMessage(format string, args ...any) string {
	return "STATUS=" + fmt.Sprintf(format, args...)
}

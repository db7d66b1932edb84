// Package systemd speaks the sd_notify protocol so the bot can run as a
// Type=notify unit with an optional watchdog.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state changes to the service manager. Without NOTIFY_SOCKET
// every call is a no-op.
type Notifier struct {
	enabled bool
	send    func(state string) (bool, error)
}

func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send:    func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) notify(state string) (bool, error) {
	if n == nil || !n.enabled {
		return false, nil
	}
	return n.send(state)
}

func (n *Notifier) Ready() (bool, error)    { return n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() (bool, error) {
	return n.notify(daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) (bool, error) { return n.notify("STATUS=" + s) }

// WatchdogInterval reports the ping interval requested by WatchdogSec, or 0.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings the watchdog every interval until ctx is done. healthy
// gates each ping so a wedged process stops pinging and gets restarted.
func (n *Notifier) RunWatchdog(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy == nil || healthy() {
				_, _ = n.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

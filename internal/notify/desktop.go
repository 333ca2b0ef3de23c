package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"

	logx "autopost/pkg/logx"
)

const (
	dbusDest   = "org.freedesktop.Notifications"
	dbusPath   = "/org/freedesktop/Notifications"
	dbusNotify = "org.freedesktop.Notifications.Notify"

	appName         = "autopost"
	desktopExpireMs = 10000
)

// desktopSender shows notifications through the session's
// org.freedesktop.Notifications service. When no session bus is
// reachable it falls back to the notify-send binary, which covers
// setups that only export the bus address to shell sessions.
type desktopSender struct {
	log logx.Logger
}

func newDesktopSender(log logx.Logger) *desktopSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &desktopSender{log: log}
}

func (d *desktopSender) Send(ctx context.Context, title, message string) error {
	if err := d.sendBus(ctx, title, message); err != nil {
		d.log.Debug("bus notification failed, trying notify-send", logx.Err(err))
		return d.sendCLI(ctx, title, message)
	}
	return nil
}

func (d *desktopSender) sendBus(ctx context.Context, title, message string) error {
	// SessionBus caches the shared connection, so dialing per send is
	// cheap and survives a restarted notification daemon.
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}
	obj := conn.Object(dbusDest, dbusPath)
	call := obj.CallWithContext(ctx, dbusNotify, 0,
		appName,
		uint32(0), // replaces nothing
		"",        // no icon
		title,
		message,
		[]string{},
		map[string]dbus.Variant{},
		int32(desktopExpireMs),
	)
	return call.Err
}

func (d *desktopSender) sendCLI(ctx context.Context, title, message string) error {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		return errors.New("no desktop notification service available")
	}
	cmd := exec.CommandContext(ctx, bin, "--app-name", appName, title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

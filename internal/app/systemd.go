package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "postbot/pkg/logx"
)

// notifyReady tells systemd (Type=notify) the service is up and, when the
// unit sets WatchdogSec, keeps the watchdog fed while the scheduler runs.
// Outside systemd both calls are no-ops.
func (a *App) notifyReady() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog misconfigured", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	a.sup.Go("systemd.watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				// A stopped loop should let systemd restart us.
				if !a.sched.Snapshot().Running {
					continue
				}
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

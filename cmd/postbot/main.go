package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"postbot/internal/app"
	logx "postbot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Used until the configured log service exists.
	boot := logx.NewConsole("INFO")

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		boot.Error("fatal", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("fatal start", logx.Err(err))
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Stop(stopCtx, "start failed")
		stopCancel()
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := "signal"
	if ctx.Err() == nil {
		reason = "fatal error"
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.StopTimeout())
	defer stopCancel()
	err = errors.Join(a.Err(), a.Stop(stopCtx, reason))
	if err != nil && !errors.Is(err, context.Canceled) {
		boot.Error("stopped with error", logx.Err(err))
		os.Exit(1)
	}
}

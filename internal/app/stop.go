package app

import (
	"context"
	"fmt"
	"time"

	logx "postbot/pkg/logx"
)

// runStep runs one shutdown step bounded by max and the caller's deadline, so
// one component cannot stall the whole stop. fn must honor its context; a
// step that overruns is logged when it finally returns.
func runStep(ctx context.Context, log logx.Logger, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		} else if took >= 500*time.Millisecond {
			log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
		}()
		return stepCtx.Err()
	}
}

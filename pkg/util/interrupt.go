package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/small-frappuccino/plana/pkg/log"
)

// WaitForInterrupt blocks until SIGINT or SIGTERM is received or ctx is done.
func WaitForInterrupt(ctx context.Context) {
	waitForInterruptContext(ctx, nil)
}

// WaitForInterruptWithCallback waits like WaitForInterrupt and then runs
// callback before returning.
func WaitForInterruptWithCallback(ctx context.Context, callback func()) {
	waitForInterruptContext(ctx, callback)
}

func waitForInterruptContext(parent context.Context, callback func()) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.ApplicationLogger().Info("Received interrupt; executing shutdown callback")

	if callback != nil {
		callback()
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptContext cancels on the first SIGINT/SIGTERM so an in-flight
// request or upload chunk can return. A second signal exits immediately.
// An interrupted import keeps its upload session and resumes on the next
// run of the same file.
func interruptContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("interrupted, stopping after the current request",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second interrupt, exiting", slog.String("signal", sig.String()))
			os.Exit(exitInterrupted)
		case <-parent.Done():
			return
		}
	}()

	return ctx, cancel
}

// Package shutdown wires OS signals to context cancellation so the
// process entrypoint can drain in-flight connections and close the log
// file before exiting.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// SetupSignalHandler derives a cancelable context from parent: SIGINT
// and SIGTERM cancel it once (a second signal is left to the default
// handler, so an unresponsive process can still be killed); SIGPIPE
// dumps goroutine stacks for diagnosis before canceling, since a broken
// pipe on a TCP connection should never normally reach the process
// signal mask.
func SetupSignalHandler(parent context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGPIPE:
				log.Warn("shutdown: received SIGPIPE", "goroutines", runtime.NumGoroutine())
				dumpStacks(log)
				cancel()
			default:
				log.Info("shutdown: received signal, shutting down", "signal", sig.String())
				signal.Stop(sigCh)
				cancel()
				return
			}
		}
	}()

	return ctx, cancel
}

func dumpStacks(log *slog.Logger) {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	log.Warn("shutdown: goroutine dump", "stacks", string(buf[:n]))
}

// Fatal logs msg with err and exits the process with a nonzero status,
// used for unrecoverable startup failures such as a failed bind.
func Fatal(log *slog.Logger, msg string, err error) {
	if log == nil {
		log = slog.Default()
	}
	log.Error(msg, "err", err)
	os.Exit(1)
}

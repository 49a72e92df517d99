package serviceutil

import (
	"attendance-backend/internal/components/telemetry"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const report_serviceutil_signal = "serviceutil.signal"

// SignalContext returns a context that is cancelled on the first SIGINT or
// SIGTERM so running cycles can drain. A second signal exits immediately.
func SignalContext(tel telemetry.API) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		tel.ReportDebug(report_serviceutil_signal, sig.String(), "draining")
		cancel()

		sig = <-sigs
		tel.ReportWarning(report_serviceutil_signal, sig.String(), "exiting without draining")
		os.Exit(130)
	}()

	return ctx
}

// Fatal logs message with err and exits, err may be nil.
func Fatal(message string, err error) {
	if err == nil {
		slog.Error(message)
	} else {
		slog.Error(message, "err", err.Error())
	}
	os.Exit(1)
}

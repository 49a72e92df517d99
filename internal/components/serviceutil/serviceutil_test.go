package serviceutil

import (
	"attendance-backend/internal/components/telemetry"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalContext(t *testing.T) {
	tel := &telemetry.Recorder{}
	ctx := SignalContext(tel)
	require.NoError(t, ctx.Err())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
	require.Eventually(t, func() bool {
		return tel.Has("debug", report_serviceutil_signal)
	}, time.Second, 10*time.Millisecond)
}

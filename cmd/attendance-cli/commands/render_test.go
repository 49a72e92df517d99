package commands

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/store"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderSnapshot(t *testing.T) {
	fetchedAt := time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

	out := &bytes.Buffer{}
	renderSnapshot(out, store.Snapshot{Identity: "jane", State: store.StatePending})
	require.Contains(t, out.String(), "jane: pending")

	out.Reset()
	renderSnapshot(out, store.Snapshot{
		Identity:    "jane",
		State:       store.StateSuccess,
		DisplayName: "Jane Doe",
		FetchedAt:   fetchedAt,
		Records: []store.Record{
			{Subject: "Engineering Physics", Present: 22, Absent: 7, Total: 29, Percent: 75.86},
		},
		Upcoming: []store.Upcoming{
			{Name: "Physics Lab", Metadata: map[string]string{"subject": "Engineering Physics", "location": "B-204"}},
		},
	})
	require.Contains(t, out.String(), "14 Oct 2026 09:00")
	require.Contains(t, out.String(), "75.86%")
	require.Contains(t, out.String(), "location=B-204, subject=Engineering Physics")

	out.Reset()
	renderSnapshot(out, store.Snapshot{Identity: "jane", State: store.StateEmpty, DisplayName: "Jane Doe", FetchedAt: fetchedAt})
	require.Contains(t, out.String(), "no attendance")
}

func TestRenderResultFailure(t *testing.T) {
	out := &bytes.Buffer{}
	renderResult(out, acquisition.Failure("jane", acquisition.StageAuthenticating, acquisition.ReasonAuthRejected, errors.New("portal: rejected")))
	require.Equal(t, "jane: failed while authenticating (auth_rejected): portal: rejected\n", out.String())
}

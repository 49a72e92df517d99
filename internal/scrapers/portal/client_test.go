package portal

import (
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/internal/scrapers/portal/portaltest"
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 14, 8, 30, 0, 0, time.UTC)

var testAccount = portaltest.Account{
	Identity:    "21BCE1001",
	Secret:      "hunter2",
	DisplayName: "Jane Doe",
}

func newTestClient(t testing.TB, baseUrl string) (*Client, *telemetry.Recorder) {
	tel := &telemetry.Recorder{}
	client, err := NewClient(Options{
		BaseUrl:           baseUrl,
		RequestsPerSecond: 100,
		Timeout:           time.Second * 5,
	}, chrono.Fixed{At: testNow}, tel)
	if err != nil {
		t.Fatal(err)
	}
	return client, tel
}

func setup(t testing.TB) (*portaltest.Server, *Client, *telemetry.Recorder) {
	server := portaltest.NewServer(testAccount)
	t.Cleanup(server.Close)
	client, tel := newTestClient(t, server.URL)
	return server, client, tel
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)
	return ctx
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Options{BaseUrl: "not a url"}, chrono.Fixed{}, &telemetry.Recorder{})
	require.Error(t, err)

	client, err := NewClient(Options{BaseUrl: "https://portal.example.edu"}, chrono.Fixed{}, &telemetry.Recorder{})
	require.NoError(t, err)
	require.Equal(t, "/login", client.opts.LoginPath)
	require.Equal(t, "username", client.opts.IdentityField)
	require.NotNil(t, client.opts.Markup.RejectionMarker)
}

func TestAuthenticate(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)
	require.Equal(t, testAccount.Identity, session.Identity)
	require.Equal(t, int64(1), server.LoginAttempts())

	_, err = client.Authenticate(ctx, testAccount.Identity, "wrong")
	require.ErrorIs(t, err, ErrRejected)
	require.NotErrorIs(t, err, ErrUnavailable)

	_, err = client.Authenticate(ctx, "nobody", testAccount.Secret)
	require.ErrorIs(t, err, ErrRejected)
}

func TestAuthenticateUnexpectedStatus(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusNotFound} {
		server.SetLoginStatus(status)
		_, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
		require.ErrorIs(t, err, ErrRejected, "status %d", status)

		var authErr *AuthError
		require.True(t, errors.As(err, &authErr))
		require.Equal(t, ReasonRejected, authErr.Reason)
	}
}

func TestAuthenticateUnavailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client, tel := newTestClient(t, "http://"+addr)
	_, err = client.Authenticate(testContext(t), testAccount.Identity, testAccount.Secret)
	require.ErrorIs(t, err, ErrUnavailable)
	require.NotErrorIs(t, err, ErrRejected)
	require.True(t, tel.Has("warning", report_client_authenticate))
}

func TestFetchProfile(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)

	profile, err := session.FetchProfile(ctx)
	require.NoError(t, err)

	expected := Profile{
		DisplayName: "Jane Doe",
		Upcoming: []UpcomingItem{
			{
				ExternalID: "evt-101",
				Name:       "Engineering Physics Lecture",
				Start:      time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC),
				End:        time.Date(2026, time.October, 14, 11, 30, 0, 0, time.UTC),
				Metadata: map[string]string{
					"kind":     "lecture",
					"subtitle": "Unit 3: Optics",
					"location": "Room B-204",
					"time":     "14-10-2026 10:00 AM - 11:30 AM",
				},
			},
			{
				ExternalID: "evt-102",
				Name:       "Discrete Mathematics Quiz",
				Start:      time.Date(2026, time.October, 14, 14, 0, 0, 0, time.UTC),
				Metadata: map[string]string{
					"location": "Hall 1",
					"time":     "2:00 PM",
				},
			},
			{
				Name:     "Library orientation",
				Metadata: map[string]string{},
			},
		},
	}
	diff := cmp.Diff(expected, profile)
	require.Empty(t, diff)

	server.ExpireSessions()
	_, err = session.FetchProfile(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.ErrorIs(t, err, ErrRejected, "an expired session counts as a rejection")
}

func TestFetchAttendanceTable(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)

	rows, err := session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)

	query := server.LastQuery()
	require.Equal(t, "01-01-2000", query.Get("fromDate"))
	require.Equal(t, "14-10-2026", query.Get("toDate"))
	require.NotEmpty(t, query.Get("pageState"), "hidden fields of the attendance page are posted back")

	expected := []RawRow{
		{Subject: "Engineering Physics", Present: 22, Total: 29, Percent: 75.86, PercentObserved: true},
		{Subject: "Discrete Mathematics", Present: 10, Total: 20, Percent: 50, PercentObserved: true},
		{Subject: "Technical Writing", Present: 3, Total: 4, Percent: 75},
		{Subject: "Workshop", Present: 0, Total: 0, Percent: 0, PercentObserved: true},
	}
	diff := cmp.Diff(expected, rows)
	require.Empty(t, diff)

	from := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC)
	_, err = session.FetchAttendanceTable(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, "01-07-2026", server.LastQuery().Get("fromDate"))
	require.Equal(t, "30-09-2026", server.LastQuery().Get("toDate"))
}

func TestFetchAttendanceTableEmpty(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)

	server.SetReportFragment(portaltest.Fixture("report_empty.html"))
	rows, err := session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Len(t, rows, 0)
}

func TestFetchAttendanceTableFailures(t *testing.T) {
	server, client, _ := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)

	server.SetReportStatus(http.StatusBadGateway)
	_, err = session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrUnavailable)

	server.SetReportStatus(0)
	server.ExpireSessions()
	_, err = session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestFetchAttendanceTableReportServesLogin(t *testing.T) {
	server, client, tel := setup(t)
	ctx := testContext(t)

	session, err := client.Authenticate(ctx, testAccount.Identity, testAccount.Secret)
	require.NoError(t, err)

	server.SetReport(portaltest.Fixture("login.html"))
	rows, err := session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Nil(t, rows)

	server.SetReportFragment(portaltest.Fixture("login.html"))
	_, err = session.FetchAttendanceTable(ctx, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, tel.Has("broken", report_session_fetch_attendance))
}

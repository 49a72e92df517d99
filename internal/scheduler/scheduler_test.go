package scheduler

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/internal/components/testutil"
	"attendance-backend/internal/scrapers/portal"
	"attendance-backend/internal/scrapers/portal/portaltest"
	"attendance-backend/internal/store"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 14, 8, 30, 0, 0, time.UTC)

// gatedAcquirer blocks every cycle until release is closed.
type gatedAcquirer struct {
	calls   atomic.Int64
	release chan struct{}
	started chan string
	panics  bool
}

func newGatedAcquirer() *gatedAcquirer {
	return &gatedAcquirer{
		release: make(chan struct{}),
		started: make(chan string, 16),
	}
}

func (a *gatedAcquirer) Acquire(ctx context.Context, req acquisition.Request) acquisition.Result {
	a.calls.Add(1)
	a.started <- req.Identity
	<-a.release
	if a.panics {
		panic("boom")
	}
	return acquisition.Result{Identity: req.Identity, Outcome: acquisition.OutcomeSuccess, Stage: acquisition.StageDone}
}

func newScheduler(acquirer Acquirer) (*Scheduler, *telemetry.Recorder) {
	tel := &telemetry.Recorder{}
	return New(acquirer, chrono.Fixed{At: testNow}, tel), tel
}

func TestTriggerAtMostOnePerIdentity(t *testing.T) {
	acquirer := newGatedAcquirer()
	scheduler, tel := newScheduler(acquirer)
	ctx := testutil.Context(t)

	first := scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
	<-acquirer.started
	second := scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
	require.Same(t, first, second)
	require.True(t, tel.Has("count", report_scheduler_joined))

	other := scheduler.Trigger(ctx, acquisition.Request{Identity: "john"})
	require.NotSame(t, first, other)
	<-acquirer.started

	close(acquirer.release)
	result, ok := AwaitBounded(first, time.Second)
	require.True(t, ok)
	require.Equal(t, acquisition.OutcomeSuccess, result.Outcome)
	require.NoError(t, scheduler.Drain(ctx))
	require.Equal(t, int64(2), acquirer.calls.Load())
}

func TestTriggerConcurrentCallers(t *testing.T) {
	acquirer := newGatedAcquirer()
	scheduler, _ := newScheduler(acquirer)
	ctx := testutil.Context(t)

	jobs := make([]*Job, 20)
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs[i] = scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
		}()
	}
	wg.Wait()

	for _, job := range jobs {
		require.Same(t, jobs[0], job)
	}
	close(acquirer.release)
	require.NoError(t, scheduler.Drain(ctx))
	require.Equal(t, int64(1), acquirer.calls.Load())
}

func TestTriggerAfterCompletionStartsFresh(t *testing.T) {
	acquirer := newGatedAcquirer()
	close(acquirer.release)
	scheduler, _ := newScheduler(acquirer)
	ctx := testutil.Context(t)

	first := scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
	_, ok := AwaitBounded(first, time.Second)
	require.True(t, ok)
	require.False(t, first.Running())

	second := scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
	require.NotSame(t, first, second)
	require.NotEqual(t, first.ID, second.ID)
	_, ok = AwaitBounded(second, time.Second)
	require.True(t, ok)
	require.Equal(t, int64(2), acquirer.calls.Load())

	latest, ok := scheduler.Lookup("jane")
	require.True(t, ok)
	require.Same(t, second, latest)

	_, ok = scheduler.Lookup("nobody")
	require.False(t, ok)
}

func TestAwaitBoundedDoesNotCancel(t *testing.T) {
	acquirer := newGatedAcquirer()
	scheduler, _ := newScheduler(acquirer)

	ctx, cancel := context.WithCancel(context.Background())
	job := scheduler.Trigger(ctx, acquisition.Request{Identity: "jane"})
	<-acquirer.started

	_, ok := AwaitBounded(job, 10*time.Millisecond)
	require.False(t, ok)
	_, _, ok = job.Result()
	require.False(t, ok)

	// the trigger context going away does not stop the job either
	cancel()
	require.True(t, job.Running())

	close(acquirer.release)
	<-job.Done()
	result, finishedAt, ok := job.Result()
	require.True(t, ok)
	require.Equal(t, acquisition.OutcomeSuccess, result.Outcome)
	require.Equal(t, testNow, finishedAt)
}

func TestAwaitBoundedZeroTimeoutPolls(t *testing.T) {
	acquirer := newGatedAcquirer()
	scheduler, _ := newScheduler(acquirer)

	job := scheduler.Trigger(testutil.Context(t), acquisition.Request{Identity: "jane"})
	<-acquirer.started
	_, ok := AwaitBounded(job, 0)
	require.False(t, ok)

	close(acquirer.release)
	<-job.Done()
	for i := 0; i < 100; i++ {
		result, ok := AwaitBounded(job, 0)
		require.True(t, ok)
		require.Equal(t, acquisition.OutcomeSuccess, result.Outcome)
	}
}

func TestJobPanicCompletes(t *testing.T) {
	acquirer := newGatedAcquirer()
	acquirer.panics = true
	close(acquirer.release)
	scheduler, tel := newScheduler(acquirer)

	job := scheduler.Trigger(testutil.Context(t), acquisition.Request{Identity: "jane"})
	result, ok := AwaitBounded(job, time.Second)
	require.True(t, ok)
	require.True(t, result.Failed())
	require.Equal(t, acquisition.ReasonInternal, result.Reason)
	require.True(t, tel.Has("broken", report_scheduler_run))

	next := scheduler.Trigger(testutil.Context(t), acquisition.Request{Identity: "jane"})
	require.NotSame(t, job, next)
}

func TestDrainHonorsContext(t *testing.T) {
	acquirer := newGatedAcquirer()
	scheduler, _ := newScheduler(acquirer)

	scheduler.Trigger(context.Background(), acquisition.Request{Identity: "jane"})
	<-acquirer.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, scheduler.Drain(ctx), context.DeadlineExceeded)

	close(acquirer.release)
	require.NoError(t, scheduler.Drain(testutil.Context(t)))
}

func TestSingleLoginAgainstPortal(t *testing.T) {
	server := portaltest.NewServer(portaltest.Account{Identity: "21BCE1001", Secret: "hunter2", DisplayName: "Jane Doe"})
	defer server.Close()
	release := server.Block()

	tel := &telemetry.Recorder{}
	clock := chrono.Fixed{At: testNow}
	client, err := portal.NewClient(portal.Options{BaseUrl: server.URL, RequestsPerSecond: 100}, clock, tel)
	require.NoError(t, err)
	s := store.New(testutil.SetupDB(t), tel)
	scheduler := New(acquisition.New(acquisition.FromClient(client), s, clock, tel), clock, tel)
	ctx := testutil.Context(t)

	req := acquisition.Request{Identity: "21BCE1001", Secret: "hunter2"}
	first := scheduler.Trigger(ctx, req)
	require.Eventually(t, func() bool {
		return server.LoginAttempts() == 1
	}, time.Second, 5*time.Millisecond)

	second := scheduler.Trigger(ctx, req)
	require.Same(t, first, second)

	snapshot, err := s.Read(ctx, req.Identity)
	require.NoError(t, err)
	require.Equal(t, store.StatePending, snapshot.State)

	release()
	result, ok := AwaitBounded(first, 5*time.Second)
	require.True(t, ok)
	require.NoError(t, result.Err)
	require.Equal(t, int64(1), server.LoginAttempts())

	snapshot, err = s.Read(ctx, req.Identity)
	require.NoError(t, err)
	require.Equal(t, store.StateSuccess, snapshot.State)
}

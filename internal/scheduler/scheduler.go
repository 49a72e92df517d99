// Package scheduler keeps at most one acquisition in flight per identity.
// Triggering an identity that is already running hands back the running
// job, callers that need the result can wait for it with a bound.
package scheduler

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/components/assert"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/telemetry"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	report_scheduler_trigger = "scheduler.trigger"
	report_scheduler_run     = "scheduler.run"
	report_scheduler_joined  = "scheduler.joined"
)

type Acquirer interface {
	Acquire(ctx context.Context, req acquisition.Request) acquisition.Result
}

// Job is the handle of one acquisition cycle. Its result is only readable
// once Done is closed.
type Job struct {
	ID        uuid.UUID
	Identity  string
	StartedAt time.Time

	done       chan struct{}
	finishedAt time.Time
	result     acquisition.Result
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// Result returns the result and the time the job finished, ok is false
// while it is still running.
func (j *Job) Result() (result acquisition.Result, finishedAt time.Time, ok bool) {
	if j.Running() {
		return acquisition.Result{}, time.Time{}, false
	}
	return j.result, j.finishedAt, true
}

type slot struct {
	mutex sync.Mutex
	job   *Job
}

type Scheduler struct {
	acquirer Acquirer
	clock    chrono.API
	tel      telemetry.API

	slots sync.Map
	wg    sync.WaitGroup
}

func New(acquirer Acquirer, clock chrono.API, tel telemetry.API) *Scheduler {
	assert.NotNil(acquirer)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Scheduler{
		acquirer: acquirer,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("scheduler", tel),
	}
}

func (s *Scheduler) slot(identity string) *slot {
	value, _ := s.slots.LoadOrStore(identity, &slot{})
	return value.(*slot)
}

// Trigger returns the running job for the identity or starts a new one.
// The job outlives ctx, only its values are carried over.
func (s *Scheduler) Trigger(ctx context.Context, req acquisition.Request) *Job {
	slot := s.slot(req.Identity)
	slot.mutex.Lock()
	defer slot.mutex.Unlock()

	if slot.job != nil && slot.job.Running() {
		s.tel.ReportCount(report_scheduler_joined, 1)
		s.tel.ReportDebug("joined running job", req.Identity, slot.job.ID.String())
		return slot.job
	}

	job := &Job{
		ID:        uuid.New(),
		Identity:  req.Identity,
		StartedAt: s.clock.Now(),
		done:      make(chan struct{}),
	}
	slot.job = job
	s.tel.ReportCount(report_scheduler_trigger, 1)

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), job, req)
	return job
}

func (s *Scheduler) run(ctx context.Context, job *Job, req acquisition.Request) {
	defer s.wg.Done()
	defer close(job.done)
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			s.tel.ReportBroken(report_scheduler_run, err, job.Identity, job.ID.String())
			job.result = acquisition.Failure(job.Identity, acquisition.StageAuthenticating, acquisition.ReasonInternal, err)
		}
		job.finishedAt = s.clock.Now()
	}()

	job.result = s.acquirer.Acquire(ctx, req)
	s.tel.ReportDebug(
		"job finished",
		job.Identity,
		job.ID.String(),
		job.result.Outcome.String(),
	)
}

// AwaitBounded waits at most timeout for the job. When the timeout wins it
// returns false and the job keeps running. A finished job is always
// returned, a timeout <= 0 only polls.
func AwaitBounded(job *Job, timeout time.Duration) (acquisition.Result, bool) {
	assert.NotNil(job)

	select {
	case <-job.done:
		return job.result, true
	default:
	}
	if timeout <= 0 {
		return acquisition.Result{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-job.done:
		return job.result, true
	case <-timer.C:
		return acquisition.Result{}, false
	}
}

// Lookup returns the running or most recent job of the identity.
func (s *Scheduler) Lookup(identity string) (*Job, bool) {
	value, ok := s.slots.Load(identity)
	if !ok {
		return nil, false
	}
	slot := value.(*slot)
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	return slot.job, slot.job != nil
}

// Drain waits for every job started so far, or until ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

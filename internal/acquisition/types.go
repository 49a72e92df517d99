package acquisition

import (
	"attendance-backend/internal/store"
	"fmt"
	"time"
)

// Request starts one acquisition cycle. FromDate and ToDate are optional
// DD-MM-YYYY dates, empty or invalid values fall back to the portal
// defaults.
type Request struct {
	Identity string
	Secret   string
	FromDate string
	ToDate   string
}

type Stage int

const (
	StageAuthenticating Stage = iota
	StageFetchingProfile
	StageFetchingAttendance
	StageComputing
	StagePersisting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageAuthenticating:
		return "authenticating"
	case StageFetchingProfile:
		return "fetching_profile"
	case StageFetchingAttendance:
		return "fetching_attendance"
	case StageComputing:
		return "computing"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeEmpty is a successful cycle that found no attendance rows.
	OutcomeEmpty
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Reason classifies a failed cycle.
type Reason string

const (
	// ReasonAuthRejected is terminal, retrying with the same secret will not help.
	ReasonAuthRejected Reason = "auth_rejected"
	// ReasonPortalUnavailable is transient, a later trigger may succeed.
	ReasonPortalUnavailable Reason = "portal_unavailable"
	// ReasonSessionExpired is treated like ReasonAuthRejected for the cycle.
	ReasonSessionExpired Reason = "session_expired"
	ReasonStorage        Reason = "storage"
	ReasonInternal       Reason = "internal"
)

// Result is the outcome of one cycle. Failures are carried here instead of
// being returned as errors.
type Result struct {
	Identity string
	Outcome  Outcome
	// Reason and Err are only set when Outcome is OutcomeFailure.
	Reason Reason
	Err    error
	// Stage is where the cycle stopped, StageDone unless it failed.
	Stage Stage

	DisplayName string
	FetchedAt   time.Time
	Records     []store.Record
	Upcoming    []store.Upcoming
}

func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailure
}

// Failure builds a failed Result, the scheduler uses it for cycles that
// could not run at all.
func Failure(identity string, stage Stage, reason Reason, err error) Result {
	return Result{
		Identity: identity,
		Outcome:  OutcomeFailure,
		Reason:   reason,
		Err:      err,
		Stage:    stage,
	}
}

// Package acquisition runs one acquisition cycle for an identity: log in,
// read the profile and the attendance report, derive the metrics and
// persist the batch. It is the only place that knows the order of those
// steps.
package acquisition

import (
	"attendance-backend/internal/calc"
	"attendance-backend/internal/components/assert"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/internal/scrapers/portal"
	"attendance-backend/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	report_acquisition_acquire  = "acquisition.acquire"
	report_acquisition_compute  = "acquisition.compute"
	report_acquisition_dates    = "acquisition.dates"
	report_acquisition_records  = "acquisition.records"
	report_acquisition_outcomes = "acquisition.outcomes"
)

// Portal is the part of the portal client the orchestrator uses.
type Portal interface {
	Authenticate(ctx context.Context, identity, secret string) (Session, error)
}

type Session interface {
	FetchProfile(ctx context.Context) (portal.Profile, error)
	FetchAttendanceTable(ctx context.Context, from, to time.Time) ([]portal.RawRow, error)
}

type Store interface {
	Persist(ctx context.Context, batch store.Batch) (sql.NullInt64, error)
}

type clientAdapter struct {
	client *portal.Client
}

func (a clientAdapter) Authenticate(ctx context.Context, identity, secret string) (Session, error) {
	session, err := a.client.Authenticate(ctx, identity, secret)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// FromClient adapts a portal client to Portal.
func FromClient(client *portal.Client) Portal {
	assert.NotNil(client)
	return clientAdapter{client: client}
}

// subjectMatchThreshold is the jaro-winkler similarity above which an
// upcoming item is linked to a subject.
const subjectMatchThreshold = 0.85

type Orchestrator struct {
	portal Portal
	store  Store
	clock  chrono.API
	tel    telemetry.API
}

func New(portal Portal, store Store, clock chrono.API, tel telemetry.API) *Orchestrator {
	assert.NotNil(portal)
	assert.NotNil(store)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Orchestrator{
		portal: portal,
		store:  store,
		clock:  clock,
		tel:    telemetry.NewScopedAPI("acquisition", tel),
	}
}

// Acquire runs one cycle. It never panics and never returns an error, the
// outcome is in the Result. A failure before StagePersisting leaves the
// store untouched, a failure while persisting is rolled back.
func (o *Orchestrator) Acquire(ctx context.Context, req Request) (result Result) {
	stage := StageAuthenticating
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Failure(req.Identity, stage, ReasonInternal, fmt.Errorf("panic: %v", recovered))
		}
		o.report(result)
	}()

	session, err := o.portal.Authenticate(ctx, req.Identity, req.Secret)
	if err != nil {
		return Failure(req.Identity, stage, classify(err), err)
	}

	stage = StageFetchingProfile
	profile, err := session.FetchProfile(ctx)
	if err != nil {
		return Failure(req.Identity, stage, classify(err), err)
	}

	stage = StageFetchingAttendance
	from, to := o.dateRange(req)
	rows, err := session.FetchAttendanceTable(ctx, from, to)
	if err != nil {
		return Failure(req.Identity, stage, classify(err), err)
	}

	stage = StageComputing
	fetchedAt := o.clock.Now()
	records := o.compute(req.Identity, rows)
	upcoming := linkUpcoming(profile.Upcoming, records, fetchedAt)

	stage = StagePersisting
	_, err = o.store.Persist(ctx, store.Batch{
		Identity:    req.Identity,
		DisplayName: profile.DisplayName,
		FetchedAt:   fetchedAt,
		Records:     records,
		Upcoming:    upcoming,
	})
	if err != nil {
		return Failure(req.Identity, stage, ReasonStorage, err)
	}

	outcome := OutcomeSuccess
	if len(records) == 0 {
		outcome = OutcomeEmpty
	}
	return Result{
		Identity:    req.Identity,
		Outcome:     outcome,
		Stage:       StageDone,
		DisplayName: profile.DisplayName,
		FetchedAt:   fetchedAt,
		Records:     records,
		Upcoming:    upcoming,
	}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, portal.ErrSessionExpired):
		return ReasonSessionExpired
	case errors.Is(err, portal.ErrRejected):
		return ReasonAuthRejected
	default:
		// unavailable, timeouts and anything the portal client could not
		// make sense of are worth retrying on a later trigger
		return ReasonPortalUnavailable
	}
}

func (o *Orchestrator) report(result Result) {
	o.tel.ReportCount(report_acquisition_outcomes+"."+result.Outcome.String(), 1)

	if !result.Failed() {
		o.tel.ReportCount(report_acquisition_records, int64(len(result.Records)))
		o.tel.ReportDebug(
			"acquisition done",
			result.Identity,
			result.Outcome.String(),
			len(result.Records),
			len(result.Upcoming),
		)
		return
	}

	switch result.Reason {
	case ReasonStorage, ReasonInternal:
		o.tel.ReportBroken(report_acquisition_acquire, result.Err, result.Identity, string(result.Reason), result.Stage.String())
	default:
		o.tel.ReportWarning(report_acquisition_acquire, result.Err, result.Identity, string(result.Reason), result.Stage.String())
	}
}

func (o *Orchestrator) dateRange(req Request) (from, to time.Time) {
	parse := func(value, name string) time.Time {
		if value == "" {
			return time.Time{}
		}
		parsed, err := portal.ParseDate(value, o.clock.Location())
		if err != nil {
			o.tel.ReportWarning(report_acquisition_dates, fmt.Errorf("invalid %s, using the default: %w", name, err), req.Identity)
			return time.Time{}
		}
		return parsed
	}

	from = parse(req.FromDate, "from date")
	to = parse(req.ToDate, "to date")
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		o.tel.ReportWarning(report_acquisition_dates, fmt.Errorf("from date %s is after to date %s, using the defaults", req.FromDate, req.ToDate), req.Identity)
		return time.Time{}, time.Time{}
	}
	return from, to
}

// compute derives the stored fields of every row. The first row of a
// subject wins, later duplicates are dropped.
func (o *Orchestrator) compute(identity string, rows []portal.RawRow) []store.Record {
	records := make([]store.Record, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		if seen[row.Subject] {
			o.tel.ReportWarning(report_acquisition_compute, fmt.Errorf("duplicate subject %q", row.Subject), identity)
			continue
		}
		if row.Present < 0 || row.Total < 0 || row.Present > row.Total {
			o.tel.ReportWarning(report_acquisition_compute, fmt.Errorf("inconsistent ratio %d/%d for %q", row.Present, row.Total, row.Subject), identity)
			continue
		}
		seen[row.Subject] = true

		metrics := calc.Derive(row.Present, row.Total)
		if row.PercentObserved && row.Total > 0 && math.Abs(row.Percent-metrics.Percent) > 0.01 {
			o.tel.ReportDebug("portal percent disagrees with ratio", identity, row.Subject, row.Percent, metrics.Percent)
		}

		records = append(records, store.Record{
			Subject:  row.Subject,
			Present:  row.Present,
			Absent:   metrics.Absent,
			Total:    row.Total,
			Percent:  metrics.Percent,
			Margin:   metrics.Margin,
			Required: metrics.Required,
		})
	}
	return records
}

// linkUpcoming converts the profile items and tags each one with the subject
// it most likely belongs to under metadata["subject"].
func linkUpcoming(items []portal.UpcomingItem, records []store.Record, fetchedAt time.Time) []store.Upcoming {
	out := make([]store.Upcoming, 0, len(items))
	for _, item := range items {
		metadata := make(map[string]string, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			metadata[k] = v
		}
		if subject, ok := matchSubject(item.Name, records); ok {
			metadata["subject"] = subject
		}

		out = append(out, store.Upcoming{
			ExternalID: item.ExternalID,
			Name:       item.Name,
			Start:      item.Start,
			End:        item.End,
			Metadata:   metadata,
			FetchedAt:  fetchedAt,
		})
	}
	return out
}

func matchSubject(name string, records []store.Record) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}

	best := ""
	bestScore := 0.0
	for _, r := range records {
		subject := strings.ToLower(r.Subject)
		score := matchr.JaroWinkler(name, subject, false)
		if strings.Contains(name, subject) {
			score = 1
		}
		if score > bestScore {
			best = r.Subject
			bestScore = score
		}
	}
	if bestScore < subjectMatchThreshold {
		return "", false
	}
	return best, true
}

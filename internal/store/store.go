// Package store persists attendance with replace-on-write semantics. A
// cycle replaces every row of an identity and repoints its snapshot in one
// transaction, so readers see either the old batch or the new one.
package store

import (
	"attendance-backend/internal/components/assert"
	"attendance-backend/internal/components/telemetry"
	"attendance-backend/internal/db"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	report_store_persist = "store.persist"
	report_store_read    = "store.read"
	report_store_forget  = "store.forget"
	report_db_query      = "db.query"
	report_db_commit     = "db.commit"
)

type State int

const (
	// StatePending means no cycle has completed for the identity yet.
	StatePending State = iota
	// StateEmpty means the last successful cycle found no attendance rows.
	StateEmpty
	// StateSuccess means the last successful cycle found at least one row.
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEmpty:
		return "empty"
	case StateSuccess:
		return "success"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Record struct {
	ID          int64
	Subject     string
	Present     int
	Absent      int
	Total       int
	Percent     float64
	Margin      int
	Required    int
	RecordedAt  time.Time
	Source      string
	DisplayName string
}

type Upcoming struct {
	ExternalID string
	Name       string
	Start      time.Time
	End        time.Time
	Metadata   map[string]string
	FetchedAt  time.Time
}

type Snapshot struct {
	Identity    string
	State       State
	DisplayName string
	FetchedAt   time.Time
	// RecordRef is the id of the newest record of the batch, 0 unless
	// State is StateSuccess.
	RecordRef int64
	Records   []Record
	Upcoming  []Upcoming
}

// Batch is the result of one successful acquisition cycle.
type Batch struct {
	Identity    string
	DisplayName string
	FetchedAt   time.Time
	Records     []Record
	Upcoming    []Upcoming
}

type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	tel    telemetry.API
}

func New(database *sql.DB, tel telemetry.API) Store {
	assert.NotNil(database)
	assert.NotNil(tel)

	return Store{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

// Replace deletes every record and upcoming row of identity and inserts the
// given ones. It returns the id of the newest inserted record, invalid if
// records is empty. The snapshot pointer is left alone, Persist moves both.
func (s Store) Replace(ctx context.Context, identity, displayName string, fetchedAt time.Time, records []Record, upcoming []Upcoming) (sql.NullInt64, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("begin: %w", err))
		return sql.NullInt64{}, err
	}
	defer discard()

	ref, err := s.replace(ctx, tx, identity, displayName, fetchedAt, records, upcoming)
	if err != nil {
		return sql.NullInt64{}, err
	}
	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_commit, err)
		return sql.NullInt64{}, err
	}
	return ref, nil
}

// UpsertSnapshot points the snapshot of identity at ref. An invalid ref is
// the "done, but empty" sentinel and must only be written after a
// successful cycle.
func (s Store) UpsertSnapshot(ctx context.Context, identity, displayName string, fetchedAt time.Time, ref sql.NullInt64) error {
	err := s.qry.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
		Identity:    identity,
		RecordRef:   ref,
		DisplayName: displayName,
		FetchedAt:   fetchedAt.Unix(),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertSnapshot", identity)
		return err
	}
	return nil
}

// Persist replaces the rows of the batch's identity and repoints its
// snapshot in a single transaction. On error nothing changes.
func (s Store) Persist(ctx context.Context, batch Batch) (sql.NullInt64, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("begin: %w", err))
		return sql.NullInt64{}, err
	}
	defer discard()

	ref, err := s.replace(ctx, tx, batch.Identity, batch.DisplayName, batch.FetchedAt, batch.Records, batch.Upcoming)
	if err != nil {
		return sql.NullInt64{}, err
	}

	err = tx.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
		Identity:    batch.Identity,
		RecordRef:   ref,
		DisplayName: batch.DisplayName,
		FetchedAt:   batch.FetchedAt.Unix(),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertSnapshot", batch.Identity)
		return sql.NullInt64{}, err
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_commit, err)
		return sql.NullInt64{}, err
	}
	s.tel.ReportDebug(report_store_persist, batch.Identity, len(batch.Records), len(batch.Upcoming))
	return ref, nil
}

func (s Store) replace(ctx context.Context, tx *db.Queries, identity, displayName string, fetchedAt time.Time, records []Record, upcoming []Upcoming) (sql.NullInt64, error) {
	err := tx.DeleteRecords(ctx, identity)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "DeleteRecords", identity)
		return sql.NullInt64{}, err
	}
	err = tx.DeleteUpcoming(ctx, identity)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "DeleteUpcoming", identity)
		return sql.NullInt64{}, err
	}

	var ref sql.NullInt64
	for _, r := range records {
		recordedAt := r.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = fetchedAt
		}
		source := r.Source
		if source == "" {
			source = db.SourceScraper
		}
		name := r.DisplayName
		if name == "" {
			name = displayName
		}

		id, err := tx.InsertRecord(ctx, db.InsertRecordParams{
			Identity:    identity,
			DisplayName: name,
			Subject:     r.Subject,
			Present:     int64(r.Present),
			Absent:      int64(r.Absent),
			Total:       int64(r.Total),
			Percent:     r.Percent,
			Margin:      int64(r.Margin),
			Required:    int64(r.Required),
			RecordedAt:  recordedAt.Unix(),
			Source:      source,
		})
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "InsertRecord", identity, r.Subject)
			return sql.NullInt64{}, err
		}
		ref = sql.NullInt64{Int64: id, Valid: true}
	}

	for _, u := range upcoming {
		metadata, err := json.Marshal(u.Metadata)
		if err != nil {
			return sql.NullInt64{}, err
		}
		if u.Metadata == nil {
			metadata = []byte("{}")
		}
		itemFetchedAt := u.FetchedAt
		if itemFetchedAt.IsZero() {
			itemFetchedAt = fetchedAt
		}

		err = tx.InsertUpcoming(ctx, db.InsertUpcomingParams{
			Identity:   identity,
			ExternalID: sql.NullString{String: u.ExternalID, Valid: u.ExternalID != ""},
			Name:       u.Name,
			StartTime:  nullTime(u.Start),
			EndTime:    nullTime(u.End),
			Metadata:   string(metadata),
			FetchedAt:  itemFetchedAt.Unix(),
		})
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "InsertUpcoming", identity, u.Name)
			return sql.NullInt64{}, err
		}
	}

	return ref, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullTime(value sql.NullInt64) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return time.Unix(value.Int64, 0)
}

// Read returns the snapshot state of identity. An identity that was never
// acquired is StatePending, not an error. Upcoming rows are returned for
// both StateEmpty and StateSuccess.
func (s Store) Read(ctx context.Context, identity string) (Snapshot, error) {
	tx, discard, _, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("begin: %w", err))
		return Snapshot{}, err
	}
	defer discard()

	row, err := tx.GetSnapshot(ctx, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Identity: identity, State: StatePending}, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSnapshot", identity)
		return Snapshot{}, err
	}

	out := Snapshot{
		Identity:    identity,
		State:       StateEmpty,
		DisplayName: row.DisplayName,
		FetchedAt:   time.Unix(row.FetchedAt, 0),
		Records:     []Record{},
		Upcoming:    []Upcoming{},
	}
	if row.RecordRef.Valid {
		out.State = StateSuccess
		out.RecordRef = row.RecordRef.Int64
	}

	if out.State == StateSuccess {
		records, err := tx.GetRecords(ctx, identity)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "GetRecords", identity)
			return Snapshot{}, err
		}
		for _, r := range records {
			out.Records = append(out.Records, Record{
				ID:          r.ID,
				Subject:     r.Subject,
				Present:     int(r.Present),
				Absent:      int(r.Absent),
				Total:       int(r.Total),
				Percent:     r.Percent,
				Margin:      int(r.Margin),
				Required:    int(r.Required),
				RecordedAt:  time.Unix(r.RecordedAt, 0),
				Source:      r.Source,
				DisplayName: r.DisplayName,
			})
		}
	}

	upcoming, err := tx.GetUpcoming(ctx, identity)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetUpcoming", identity)
		return Snapshot{}, err
	}
	for _, u := range upcoming {
		metadata := map[string]string{}
		err := json.Unmarshal([]byte(u.Metadata), &metadata)
		if err != nil {
			s.tel.ReportWarning(report_store_read, fmt.Errorf("decode upcoming metadata: %w", err), identity, u.ID)
		}
		out.Upcoming = append(out.Upcoming, Upcoming{
			ExternalID: u.ExternalID.String,
			Name:       u.Name,
			Start:      fromNullTime(u.StartTime),
			End:        fromNullTime(u.EndTime),
			Metadata:   metadata,
			FetchedAt:  time.Unix(u.FetchedAt, 0),
		})
	}

	return out, nil
}

// List returns the snapshot row of every identity, newest first. Records
// are not loaded.
func (s Store) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.qry.ListSnapshots(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListSnapshots")
		return nil, err
	}
	out := make([]Snapshot, len(rows))
	for i, row := range rows {
		out[i] = Snapshot{
			Identity:    row.Identity,
			State:       StateEmpty,
			DisplayName: row.DisplayName,
			FetchedAt:   time.Unix(row.FetchedAt, 0),
		}
		if row.RecordRef.Valid {
			out[i].State = StateSuccess
			out[i].RecordRef = row.RecordRef.Int64
		}
	}
	return out, nil
}

// Forget removes every row of identity, it reads as pending afterwards.
func (s Store) Forget(ctx context.Context, identity string) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("begin: %w", err))
		return err
	}
	defer discard()

	for _, step := range []struct {
		name string
		exec func(context.Context, string) error
	}{
		{name: "DeleteSnapshot", exec: tx.DeleteSnapshot},
		{name: "DeleteRecords", exec: tx.DeleteRecords},
		{name: "DeleteUpcoming", exec: tx.DeleteUpcoming},
	} {
		err := step.exec(ctx, identity)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, step.name, identity)
			return err
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_commit, err)
		return err
	}
	s.tel.ReportDebug(report_store_forget, identity)
	return nil
}

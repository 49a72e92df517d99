package db

import (
	"context"
	"database/sql"
)

const deleteRecords = `delete from attendance_record where identity = ?`

func (q *Queries) DeleteRecords(ctx context.Context, identity string) error {
	_, err := q.db.ExecContext(ctx, deleteRecords, identity)
	return err
}

const deleteUpcoming = `delete from upcoming_item where identity = ?`

func (q *Queries) DeleteUpcoming(ctx context.Context, identity string) error {
	_, err := q.db.ExecContext(ctx, deleteUpcoming, identity)
	return err
}

const deleteSnapshot = `delete from latest_snapshot where identity = ?`

func (q *Queries) DeleteSnapshot(ctx context.Context, identity string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshot, identity)
	return err
}

const insertRecord = `insert into attendance_record(
    identity, display_name, subject,
    present, absent, total,
    percent, margin, required,
    recorded_at, source
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
returning id`

type InsertRecordParams struct {
	Identity    string
	DisplayName string
	Subject     string
	Present     int64
	Absent      int64
	Total       int64
	Percent     float64
	Margin      int64
	Required    int64
	RecordedAt  int64
	Source      string
}

func (q *Queries) InsertRecord(ctx context.Context, arg InsertRecordParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertRecord,
		arg.Identity,
		arg.DisplayName,
		arg.Subject,
		arg.Present,
		arg.Absent,
		arg.Total,
		arg.Percent,
		arg.Margin,
		arg.Required,
		arg.RecordedAt,
		arg.Source,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertUpcoming = `insert into upcoming_item(
    identity, external_id, name,
    start_time, end_time, metadata, fetched_at
) values (?, ?, ?, ?, ?, ?, ?)`

type InsertUpcomingParams struct {
	Identity   string
	ExternalID sql.NullString
	Name       string
	StartTime  sql.NullInt64
	EndTime    sql.NullInt64
	Metadata   string
	FetchedAt  int64
}

func (q *Queries) InsertUpcoming(ctx context.Context, arg InsertUpcomingParams) error {
	_, err := q.db.ExecContext(ctx, insertUpcoming,
		arg.Identity,
		arg.ExternalID,
		arg.Name,
		arg.StartTime,
		arg.EndTime,
		arg.Metadata,
		arg.FetchedAt,
	)
	return err
}

const upsertSnapshot = `insert into latest_snapshot(identity, record_ref, display_name, fetched_at)
values (?, ?, ?, ?)
on conflict (identity) do update set
    record_ref = excluded.record_ref,
    display_name = excluded.display_name,
    fetched_at = excluded.fetched_at`

type UpsertSnapshotParams struct {
	Identity    string
	RecordRef   sql.NullInt64
	DisplayName string
	FetchedAt   int64
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot,
		arg.Identity,
		arg.RecordRef,
		arg.DisplayName,
		arg.FetchedAt,
	)
	return err
}

const getSnapshot = `select identity, record_ref, display_name, fetched_at
from latest_snapshot where identity = ?`

func (q *Queries) GetSnapshot(ctx context.Context, identity string) (LatestSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, identity)
	var i LatestSnapshot
	err := row.Scan(
		&i.Identity,
		&i.RecordRef,
		&i.DisplayName,
		&i.FetchedAt,
	)
	return i, err
}

const listSnapshots = `select identity, record_ref, display_name, fetched_at
from latest_snapshot order by fetched_at desc, identity asc`

func (q *Queries) ListSnapshots(ctx context.Context) ([]LatestSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshots)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LatestSnapshot
	for rows.Next() {
		var i LatestSnapshot
		if err := rows.Scan(
			&i.Identity,
			&i.RecordRef,
			&i.DisplayName,
			&i.FetchedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRecords = `select
    id, identity, display_name, subject,
    present, absent, total,
    percent, margin, required,
    recorded_at, source
from attendance_record where identity = ? order by id asc`

func (q *Queries) GetRecords(ctx context.Context, identity string) ([]AttendanceRecord, error) {
	rows, err := q.db.QueryContext(ctx, getRecords, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AttendanceRecord
	for rows.Next() {
		var i AttendanceRecord
		if err := rows.Scan(
			&i.ID,
			&i.Identity,
			&i.DisplayName,
			&i.Subject,
			&i.Present,
			&i.Absent,
			&i.Total,
			&i.Percent,
			&i.Margin,
			&i.Required,
			&i.RecordedAt,
			&i.Source,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUpcoming = `select
    id, identity, external_id, name,
    start_time, end_time, metadata, fetched_at
from upcoming_item where identity = ? order by id asc`

func (q *Queries) GetUpcoming(ctx context.Context, identity string) ([]UpcomingItem, error) {
	rows, err := q.db.QueryContext(ctx, getUpcoming, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UpcomingItem
	for rows.Next() {
		var i UpcomingItem
		if err := rows.Scan(
			&i.ID,
			&i.Identity,
			&i.ExternalID,
			&i.Name,
			&i.StartTime,
			&i.EndTime,
			&i.Metadata,
			&i.FetchedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

package db

import (
	"database/sql"
)

type AttendanceRecord struct {
	ID          int64
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

type LatestSnapshot struct {
	Identity    string
	RecordRef   sql.NullInt64
	DisplayName string
	FetchedAt   int64
}

type UpcomingItem struct {
	ID         int64
	Identity   string
	ExternalID sql.NullString
	Name       string
	StartTime  sql.NullInt64
	EndTime    sql.NullInt64
	Metadata   string
	FetchedAt  int64
}

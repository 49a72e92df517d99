package testutil

import (
	"attendance-backend/internal/db"
	"context"
	"database/sql"
	"testing"
	"time"
)

// SetupDB opens a fresh in-memory database with the schema applied, it is
// closed when the test finishes.
func SetupDB(t testing.TB) *sql.DB {
	t.Helper()

	database, err := db.Open(db.Config{File: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// Context is the standard bounded context tests use for I/O.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)
	return ctx
}

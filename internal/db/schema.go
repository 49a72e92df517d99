package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	SourceScraper = "scraper"
)

// Config selects the database. Url takes precedence over File, a File of
// `:memory:` opens a private in-memory database.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// Open opens the configured database and applies Schema.
func Open(config Config) (*sql.DB, error) {
	var (
		database *sql.DB
		err      error
	)
	switch {
	case config.Url != "":
		database, err = openLibsql(config)
	case config.File != "":
		database, err = openSqlite(config.File)
	default:
		return nil, wrapOpenDB(fmt.Errorf("neither a file nor a url was specified"))
	}
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	_, err = database.Exec(Schema)
	if err != nil {
		database.Close()
		return nil, wrapOpenDB(fmt.Errorf("apply schema: %w", err))
	}
	return database, nil
}

func openLibsql(config Config) (*sql.DB, error) {
	dsn := config.Url
	if config.AuthToken != "" {
		values := url.Values{}
		values.Add("authToken", config.AuthToken)
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + values.Encode()
	}
	return sql.Open("libsql", dsn)
}

func openSqlite(path string) (*sql.DB, error) {
	memory := path == ":memory:"
	if !memory {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	// every connection to `:memory:` is a different database, so the cap is
	// also what keeps in-memory databases usable.
	database.SetMaxOpenConns(1)
	if memory {
		return database, nil
	}
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

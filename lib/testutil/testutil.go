package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"sakaibot/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	Name string
	// if unspecified, no schema is applied
	Schema string
	// if unspecified, it will use `:memory:`
	Path string
}

// SetupDB opens a sqlite database for a test and applies the schema. The
// database is closed when the test ends.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	t.Helper()
	t.Cleanup(telemetry.SetupForTesting(fmt.Sprintf("test:%s", params.Name)))

	path := ":memory:"
	if params.Path != "" {
		path = params.Path
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	// every connection of an in-memory database is a different database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if params.Schema == "" {
		return db
	}
	_, err = db.Exec(params.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return db
}

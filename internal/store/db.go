package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects the database. Url points at a remote libsql server, File at
// a local sqlite file, ":memory:" keeps everything in memory.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// Open opens the database and applies the schema.
func Open(config Config) (*sql.DB, error) {
	db, err := config.open()
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil && !strings.Contains(err.Error(), "already exists") {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func (config Config) open() (*sql.DB, error) {
	if config.Url != "" {
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		return sql.Open("libsql", config.Url+"?"+values.Encode())
	}

	if config.File == "" {
		return nil, fmt.Errorf("neither a database file nor url was specified")
	}
	if config.File != ":memory:" {
		_, statErr := os.Stat(config.File)
		if os.IsNotExist(statErr) {
			f, err := os.Create(config.File)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// sqlite takes one writer at a time
	db.SetMaxOpenConns(1)
	if config.File != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// MakeTx begins a transaction. discard rolls it back and is a no-op after
// commit.
type MakeTx = func(ctx context.Context) (tx *sql.Tx, discard func(), commit func() error, err error)

func NewMakeTx(db *sql.DB) MakeTx {
	return func(ctx context.Context) (*sql.Tx, func(), func() error, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return tx,
			func() { tx.Rollback() },
			func() error { return tx.Commit() },
			nil
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// testDSN returns a named shared in-memory SQLite DSN. The name is derived
// from t.Name() so parallel tests never share a database. WAL mode does not
// apply to in-memory databases, so the journal_mode pragma is omitted.
func testDSN(t *testing.T) string {
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)
}

func openTestPool(t *testing.T, dsn string, maxConns int) *sql.DB {
	t.Helper()

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	pool.SetMaxOpenConns(maxConns)
	if err := pool.PingContext(context.Background()); err != nil {
		_ = pool.Close()
		t.Fatalf("ping test db: %v", err)
	}
	return pool
}

// setupTestDB creates a migrated in-memory database whose writer and reader
// pools see the same data, mirroring the production layout.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := testDSN(t)
	writer := openTestPool(t, dsn, 1)
	reader := openTestPool(t, dsn, 4)

	db := &DB{Writer: writer, Reader: reader, path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

func newTestAccount(username string, expiration time.Time) model.Account {
	return model.Account{
		RemoteID:           "r-" + username,
		Username:           username,
		Password:           "secret",
		MaxActivePoints:    1,
		Expiration:         expiration,
		AutoRenewalEnabled: true,
	}
}

// seedAccount stores a default test account and returns it with its id.
func seedAccount(t *testing.T, db *DB, username string, expiration time.Time) model.Account {
	t.Helper()

	stored, err := NewAccountRepo(db).UpsertLocalAccount(context.Background(), newTestAccount(username, expiration))
	if err != nil {
		t.Fatalf("seed account %s: %v", username, err)
	}
	return stored
}

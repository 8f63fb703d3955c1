package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/regdetect/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk, busy int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 5000 {
		t.Errorf("busy_timeout: got %d, want 5000", busy)
	}
}

func TestWithSchemaAndBusyTimeout(t *testing.T) {
	db := dbopen.OpenMemory(t,
		dbopen.WithBusyTimeout(250),
		dbopen.WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v BLOB)`),
	)
	if _, err := db.Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var busy int
	db.QueryRow("PRAGMA busy_timeout").Scan(&busy)
	if busy != 250 {
		t.Errorf("busy_timeout: got %d, want 250", busy)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema("NOT SQL")); err == nil {
		t.Error("Open with invalid schema: want error")
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "regdetect.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent dir: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table"), false},
		{errors.New("exec: SQLITE_BUSY (5)"), true},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v): got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY)`))
	ctx := context.Background()

	if err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv (k) VALUES ('kept')`)
		return err
	}); err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	boom := errors.New("boom")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO kv (k) VALUES ('dropped')`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTx: got %v, want boom", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n)
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY)`))
	res, err := dbopen.Exec(context.Background(), db, `INSERT INTO kv (k) VALUES (?)`, "x")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("RowsAffected: got %d", n)
	}
}

func TestRunTx_CancelledContext(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Error("RunTx with cancelled context: want error")
	}
}

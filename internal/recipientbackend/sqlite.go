package recipientbackend

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/logging"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend is a single-table recipients(addr, suid, uid, ena,
// login_rule, karma, karma_status, reg_time) store keyed by address.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) the recipients table at
// path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS recipients (
		addr         TEXT PRIMARY KEY NOT NULL CHECK(addr <> ''),
		suid         INTEGER NOT NULL,
		uid          TEXT NOT NULL,
		ena          INTEGER NOT NULL DEFAULT 1,
		login_rule   INTEGER NOT NULL DEFAULT 1,
		karma        INTEGER NOT NULL DEFAULT 0,
		karma_status TEXT NOT NULL DEFAULT '',
		reg_time     INTEGER NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Lookup(ctx context.Context, addr string) (*Info, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT suid, uid, ena, login_rule, karma, karma_status, reg_time
		FROM recipients
		WHERE addr = ?`, addr)

	var (
		ena, loginRule int
		regTime        int64
		info           Info
	)
	err := row.Scan(&info.Suid, &info.UID, &ena, &loginRule, &info.Karma, &info.KarmaStatus, &regTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logging.ErrorLog("recipientbackend: lookup query failed: %v", err)
		return nil, err
	}

	info.Ena = ena != 0
	info.LoginRule = loginRule != 0
	info.RegTime = time.Unix(regTime, 0)
	return &info, nil
}

// Provision inserts or replaces a recipient record; used by tests and by
// an eventual provisioning path.
func (b *SQLiteBackend) Provision(ctx context.Context, addr string, info Info) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO recipients (addr, suid, uid, ena, login_rule, karma, karma_status, reg_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(addr) DO UPDATE SET
			suid=excluded.suid, uid=excluded.uid, ena=excluded.ena,
			login_rule=excluded.login_rule, karma=excluded.karma,
			karma_status=excluded.karma_status, reg_time=excluded.reg_time`,
		addr, info.Suid, info.UID, boolToInt(info.Ena), boolToInt(info.LoginRule),
		info.Karma, info.KarmaStatus, info.RegTime.Unix(),
	)
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

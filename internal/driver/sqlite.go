package driver

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDriver — нативный адаптер SQLite (modernc.org/sqlite, без cgo).
//
// Файл базы: DSN, если задан (тогда db task должна совпадать с db секции),
// иначе <dbfarm>/<db>.db.
// db == ":memory:" открывает базу в памяти.
type SQLiteDriver struct{}

func (d *SQLiteDriver) Name() string { return "sqlite" }

func (d *SQLiteDriver) Open(ctx context.Context, target Target) (Session, error) {
	if err := checkDSNDatabase(d.Name(), target); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqlitePath(target))
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	s, err := openSQL(ctx, d.Name(), db, target.Timeout)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func sqlitePath(target Target) string {
	if target.DSN != "" {
		return target.DSN
	}
	if target.DB == ":memory:" || strings.HasPrefix(target.DB, "file:") {
		return target.DB
	}
	name := target.DB
	if filepath.Ext(name) == "" {
		name += ".db"
	}
	return filepath.Join(target.DBFarm, name)
}

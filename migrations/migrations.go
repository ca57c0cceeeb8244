// Package migrations embeds the schema migrations for each supported
// database and runs them with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql mysql/*.sql sqlite3/*.sql
var files embed.FS

// dir returns the embedded directory holding driverName's migrations.
func dir(driverName string) (string, error) {
	switch driverName {
	case "postgres", "pgx":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite3":
		return "sqlite3", nil
	}
	return "", fmt.Errorf("migrations: unsupported driver %q", driverName)
}

// Source returns the embedded migration source for driverName.
func Source(driverName string) (source.Driver, error) {
	d, err := dir(driverName)
	if err != nil {
		return nil, err
	}
	return iofs.New(files, d)
}

// databaseURL turns a database/sql DSN into the URL form golang-migrate
// expects. Postgres DSNs must already be URLs.
func databaseURL(driverName, dsn string) (string, error) {
	switch driverName {
	case "postgres", "pgx":
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return "", errors.New("migrations: postgres DATABASE_URL must be a postgres:// URL")
		}
		return dsn, nil
	case "mysql":
		if strings.HasPrefix(dsn, "mysql://") {
			return dsn, nil
		}
		return "mysql://" + dsn, nil
	case "sqlite3":
		if strings.HasPrefix(dsn, "sqlite3://") {
			return dsn, nil
		}
		return "sqlite3://" + strings.TrimPrefix(dsn, "file:"), nil
	}
	return "", fmt.Errorf("migrations: unsupported driver %q", driverName)
}

// New returns a migrator bound to the embedded migrations for driverName.
// The caller must Close it.
func New(driverName, dsn string, log *zap.Logger) (*migrate.Migrate, error) {
	src, err := Source(driverName)
	if err != nil {
		return nil, err
	}
	url, err := databaseURL(driverName, dsn)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	if log != nil {
		m.Log = &migrateLogger{log: log.Named("migrate").Sugar()}
	}
	return m, nil
}

// Up applies every pending migration. Being already current is not an
// error.
func Up(driverName, dsn string, log *zap.Logger) error {
	m, err := New(driverName, dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l *migrateLogger) Verbose() bool { return false }

package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
)

// ─────────────────────────────────────────────────────────────────────────────
// Driver
// ─────────────────────────────────────────────────────────────────────────────

// Driver bundles what differs between databases: DSN syntax, the
// database/sql registration name and the error translation.
type Driver interface {
	// Name is the name the driver is registered under with database/sql.
	Name() string
	DSN(opts DriverOptions) (string, error)
	ErrorMapper() ErrorMapper
	// Register makes sure the database/sql driver is available. It must be
	// idempotent.
	Register()
}

// DSNNormalizer is implemented by drivers that need connection options
// forced on a DSN supplied from configuration.
type DSNNormalizer interface {
	NormalizeDSN(dsn string) (string, error)
}

// DriverOptions are structured connection parameters; Driver.DSN renders
// them in the driver's native syntax.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Extra holds driver-specific parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds d to the registry. It panics on a duplicate name.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("appointments/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// LookupDriver returns the registered driver for name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("appointments/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver renders the DSN with the named driver, opens the pool and
// installs the driver's error mapper.
//
//	d, err := db.OpenWithDriver("pgx", db.DriverOptions{
//	    Host: "localhost", User: "clinic", Password: "secret", Database: "appointments",
//	}, db.Config{MaxOpenConns: 25})
func OpenWithDriver(driverName string, driverOpts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}
	dsn, err := drv.DSN(driverOpts)
	if err != nil {
		return nil, fmt.Errorf("appointments/db: build DSN: %w", err)
	}
	cfg.DSN = dsn
	return OpenDriver(drv, cfg)
}

// OpenDriver opens cfg.DSN with drv and installs drv's error mapper. It is
// the path used when the DSN already comes from configuration.
func OpenDriver(drv Driver, cfg Config) (*DB, error) {
	drv.Register()
	cfg.DriverName = drv.Name()
	if n, ok := drv.(DSNNormalizer); ok {
		dsn, err := n.NormalizeDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("appointments/db: normalize DSN: %w", err)
		}
		cfg.DSN = dsn
	}

	d, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	d.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver is lib/pq.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	return postgresURL(o)
}

func (PostgresDriver) ErrorMapper() ErrorMapper {
	return ErrorMapperFunc(func(err error) error { return mapWith(err, mapPQError) })
}

func (PostgresDriver) Register() {}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (pgx stdlib)
// ─────────────────────────────────────────────────────────────────────────────

// PgxDriver is pgx through its database/sql adapter.
type PgxDriver struct{}

func (PgxDriver) Name() string { return "pgx" }

func (PgxDriver) DSN(o DriverOptions) (string, error) {
	return postgresURL(o)
}

func (PgxDriver) ErrorMapper() ErrorMapper {
	return ErrorMapperFunc(func(err error) error { return mapWith(err, mapPgxError) })
}

func (PgxDriver) Register() {}

// postgresURL renders a postgres:// URL understood by both lib/pq and pgx.
func postgresURL(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(o.Host, strconv.Itoa(port)),
		Path:     "/" + o.Database,
		RawQuery: q.Encode(),
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	return u.String(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is go-sql-driver/mysql.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

// DSN always enables parseTime, so DATETIME columns scan into time.Time,
// and clientFoundRows, so UPDATE reports matched rather than changed rows.
func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}

	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	c.DBName = o.Database
	c.ParseTime = true
	c.ClientFoundRows = true
	c.Loc = time.UTC
	if len(o.Extra) > 0 {
		c.Params = make(map[string]string, len(o.Extra))
		for k, v := range o.Extra {
			c.Params[k] = v
		}
	}
	return c.FormatDSN(), nil
}

// NormalizeDSN applies the options DSN sets to a DSN from configuration.
func (MySQLDriver) NormalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ParseTime = true
	c.ClientFoundRows = true
	return c.FormatDSN(), nil
}

func (MySQLDriver) ErrorMapper() ErrorMapper {
	return ErrorMapperFunc(func(err error) error { return mapWith(err, mapMySQLError) })
}

func (MySQLDriver) Register() {}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver expects the binary to import github.com/mattn/go-sqlite3.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

// DSN treats Database as the file path (or ":memory:"). Extra becomes the
// query string in sorted key order.
func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3: Database (file path) is required")
	}
	if len(o.Extra) == 0 {
		return o.Database, nil
	}
	q := url.Values{}
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	return o.Database + "?" + q.Encode(), nil
}

func (SQLiteDriver) ErrorMapper() ErrorMapper {
	return ErrorMapperFunc(func(err error) error { return mapWith(err, mapSQLiteError) })
}

func (SQLiteDriver) Register() {}

func init() {
	RegisterDriver(PostgresDriver{})
	RegisterDriver(PgxDriver{})
	RegisterDriver(MySQLDriver{})
	RegisterDriver(SQLiteDriver{})
}

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/repo"
	"github.com/Skryldev/appointments/telemetry"
)

// A database container may still be starting when the service does.
const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type storeHandle struct {
	store repo.AppointmentRepository
	// ping is nil for the in-memory backend.
	ping  pingFunc
	close func() error
}

// openStore builds the configured record store. metrics may be nil.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, metrics *telemetry.Metrics, autoMigrate bool) (*storeHandle, error) {
	dbc := cfg.Database
	switch dbc.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory store: data is lost on exit")
		return &storeHandle{store: repo.NewMemoryAppointmentRepo(), close: func() error { return nil }}, nil

	case config.BackendGorm:
		dsn, err := resolveDSN(dbc)
		if err != nil {
			return nil, err
		}
		gdb, err := repo.OpenGorm(repo.GormConfig{
			DriverName:      dbc.Driver,
			DSN:             dsn,
			MaxOpenConns:    dbc.MaxOpenConns,
			MaxIdleConns:    dbc.MaxIdleConns,
			ConnMaxLifetime: dbc.ConnMaxLifetime,
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		if autoMigrate {
			if err := repo.MigrateGorm(gdb); err != nil {
				_ = sqlDB.Close()
				return nil, err
			}
		}
		return &storeHandle{
			store: repo.NewGormAppointmentRepo(gdb),
			ping:  sqlDB.PingContext,
			close: sqlDB.Close,
		}, nil

	case config.BackendSQL:
		drv, err := db.LookupDriver(dbc.Driver)
		if err != nil {
			return nil, err
		}
		dialect, err := repo.DialectFor(dbc.Driver)
		if err != nil {
			return nil, err
		}
		hooks := []db.Hook{
			db.NewLogHook(db.LogHookConfig{
				Logger:             log,
				SlowQueryThreshold: dbc.SlowQueryThreshold,
				LogArgs:            dbc.LogArgs,
			}),
			db.NewTracingHook(telemetry.NewDBTracer(nil, telemetry.DBSystem(dbc.Driver))),
		}
		if metrics != nil {
			hooks = append(hooks, db.NewMetricsHook(metrics))
		}
		var database *db.DB
		retry := db.RetryConfig{
			MaxAttempts: connectAttempts,
			Delay:       connectDelay,
			RetryOn: func(err error) bool {
				log.Warn("database not reachable, retrying", zap.Error(err))
				return true
			},
		}
		poolCfg := db.Config{
			DSN:             dbc.URL,
			MaxOpenConns:    dbc.MaxOpenConns,
			MaxIdleConns:    dbc.MaxIdleConns,
			ConnMaxLifetime: dbc.ConnMaxLifetime,
			ConnMaxIdleTime: dbc.ConnMaxIdleTime,
			DefaultTimeout:  dbc.DefaultTimeout,
			Hooks:           hooks,
		}
		err = db.WithRetry(ctx, retry, func() (err error) {
			if dbc.URL != "" {
				database, err = db.OpenDriver(drv, poolCfg)
			} else {
				database, err = db.OpenWithDriver(dbc.Driver, driverOptions(dbc), poolCfg)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		log.Info("database connected", zap.String("driver", dbc.Driver), zap.Int("open_connections", database.Stats().OpenConnections))
		return &storeHandle{
			store: repo.NewAppointmentRepo(database, dialect),
			ping:  database.Ping,
			close: database.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", dbc.Backend)
}

func driverOptions(dbc config.DatabaseConfig) db.DriverOptions {
	return db.DriverOptions{
		Host:     dbc.Host,
		Port:     dbc.Port,
		User:     dbc.User,
		Password: dbc.Password,
		Database: dbc.Name,
		SSLMode:  dbc.SSLMode,
	}
}

// resolveDSN returns DATABASE_URL when set, else the DSN the configured
// driver renders from the structured DB_* settings.
func resolveDSN(dbc config.DatabaseConfig) (string, error) {
	if dbc.URL != "" {
		return dbc.URL, nil
	}
	drv, err := db.LookupDriver(dbc.Driver)
	if err != nil {
		return "", err
	}
	dsn, err := drv.DSN(driverOptions(dbc))
	if err != nil {
		return "", fmt.Errorf("build %s DSN: %w", dbc.Driver, err)
	}
	return dsn, nil
}

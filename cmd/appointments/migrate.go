package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, log, err := bootstrapSchema()
				if err != nil {
					return err
				}
				return migrateUp(cfg, log)
			},
		},
		&cobra.Command{
			Use:   "down [N]",
			Short: "Roll back N migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("down: invalid steps argument %q", args[0])
					}
					steps = n
				}
				return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
					if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("down: %w", err)
					}
					log.Info("migrations: down completed", zap.Int("steps", steps))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migrate.Migrate, _ *zap.Logger) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "version: none")
						return nil
					}
					if err != nil {
						return fmt.Errorf("version: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version: %d  dirty: %v\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force V",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("force: invalid version %q", args[0])
				}
				return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force: %w", err)
					}
					log.Info("migrations: forced", zap.Int("version", v))
					return nil
				})
			},
		},
		dropCmd(),
	)
	return cmd
}

func dropCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("drop destroys all data; rerun with --yes to confirm")
			}
			return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
				if err := m.Drop(); err != nil {
					return fmt.Errorf("drop: %w", err)
				}
				log.Warn("migrations: all tables dropped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all tables")
	return cmd
}

// bootstrapSchema is bootstrap for commands that need a real database.
func bootstrapSchema() (*config.Config, *zap.Logger, error) {
	cfg, log, err := bootstrap()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Backend == config.BackendMemory {
		return nil, nil, errors.New("this command needs a database backend, not memory")
	}
	return cfg, log, nil
}

func withMigrator(fn func(m *migrate.Migrate, log *zap.Logger) error) error {
	cfg, log, err := bootstrapSchema()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dsn, err := resolveDSN(cfg.Database)
	if err != nil {
		return err
	}
	m, err := migrations.New(cfg.Database.Driver, dsn, log)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			log.Warn("closing migrator", zap.Error(err))
		}
	}()
	return fn(m, log)
}

func migrateUp(cfg *config.Config, log *zap.Logger) error {
	dsn, err := resolveDSN(cfg.Database)
	if err != nil {
		return err
	}
	if err := migrations.Up(cfg.Database.Driver, dsn, log); err != nil {
		return err
	}
	log.Info("migrations: up completed", zap.String("driver", cfg.Database.Driver))
	return nil
}

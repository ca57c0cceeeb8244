// Command appointments runs the appointment API and its maintenance tasks.
//
//	appointments serve
//	appointments migrate up | down [N] | version | force <V>
//	appointments seed
//
// All settings come from the environment (see package config).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "appointments",
		Short:         "Clinic appointment API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(log)
	return cfg, log.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Environment)), nil
}

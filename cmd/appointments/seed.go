package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/repo"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample schedule into an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrapSchema()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			sh, err := openStore(cmd.Context(), cfg, log, nil, false)
			if err != nil {
				return err
			}
			defer func() { _ = sh.close() }()

			n, err := repo.Seed(cmd.Context(), sh.store)
			if err != nil {
				return err
			}
			if n == 0 {
				log.Info("store already has appointments; nothing seeded")
				return nil
			}
			log.Info("seeded sample appointments", zap.Int("inserted", n))
			return nil
		},
	}
}

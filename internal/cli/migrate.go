package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"training-portal/internal/config"
	"training-portal/internal/infra/postgres"
	"training-portal/internal/logger"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			return postgres.Migrate(cmd.Context(), cfg.Postgres.URL, logger.Setup(cfg.Log.Level, cfg.Log.Format))
		},
	}
}

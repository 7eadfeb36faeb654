package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/backupmon/backupmon/internal/backupmon"
	"github.com/backupmon/backupmon/internal/common/app"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates the client database to the latest version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			retryInterval, err := cmd.Flags().GetDuration("retryInterval")
			if err != nil {
				return err
			}
			start := time.Now()
			log.Infof("Beginning %s client database migration", config.ClientDb.Type)
			if err := backupmon.Migrate(app.CreateContextWithShutdown(), config.ClientDb, retryInterval); err != nil {
				return err
			}
			log.Infof("Client database migrated in %s", time.Since(start))
			return nil
		},
	}
	cmd.Flags().Duration("retryInterval", 5*time.Second, "Time to wait before retrying an unreachable database")
	return cmd
}

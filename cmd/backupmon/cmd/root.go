package cmd

import (
	"github.com/spf13/cobra"

	"github.com/backupmon/backupmon/internal/common/config"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
)

const defaultConfigPath = "./config/backupmon"

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "backupmon",
		SilenceUsage: true,
		Short:        "Receives backup results and ingests their metrics",
	}

	config.AddConfigFlag(cmd.PersistentFlags())

	cmd.AddCommand(
		receiveCmd(),
		consumeCmd(),
		workCmd(),
		sweepOrphansCmd(),
		clientCmd(),
		migrateCmd(),
	)

	return cmd
}

// loadConfig reads, validates and applies the configuration named by the --config flags of cmd.
func loadConfig(cmd *cobra.Command) (configuration.BackupMonConfiguration, error) {
	var c configuration.BackupMonConfiguration
	userSpecifiedConfigs, err := cmd.Flags().GetStringSlice(config.CustomConfigLocation)
	if err != nil {
		return c, err
	}
	if _, err := config.LoadConfig(&c, defaultConfigPath, userSpecifiedConfigs); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	if err := logging.ConfigureApplicationLogging(c.Logging); err != nil {
		return c, err
	}
	return c, nil
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/backupmon/backupmon/internal/backupmon"
	"github.com/backupmon/backupmon/internal/common/app"
)

func receiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "Serves the endpoints backup results are posted and e-mailed to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return backupmon.RunReceiver(app.CreateContextWithShutdown(), config)
		},
	}
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Polls the queue and invokes workers to ingest received backup results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return backupmon.RunConsumer(app.CreateContextWithShutdown(), config)
		},
	}
}

func workCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Runs queue workers invoked by the consumer over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return backupmon.RunWorkers(app.CreateContextWithShutdown(), config)
		},
	}
}

func sweepOrphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Reports received backup results that were never ingested",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			once, err := cmd.Flags().GetBool("once")
			if err != nil {
				return err
			}
			return backupmon.SweepOrphans(app.CreateContextWithShutdown(), config, once)
		},
	}
	cmd.Flags().Bool("once", false, "Sweep once and exit instead of sweeping every orphans.interval")
	return cmd
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backupmon/backupmon/internal/backupmon"
	"github.com/backupmon/backupmon/internal/common/bmcontext"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage the clients backup results are accepted from",
	}
	cmd.AddCommand(
		clientAddCmd(),
		clientShowCmd(),
	)
	return cmd
}

func clientAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <clientId>",
		Short: "Adds a client, generating a key unless one is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key, err := cmd.Flags().GetString("key")
			if err != nil {
				return err
			}
			key, err = backupmon.AddClient(bmcontext.Background(), config.ClientDb, args[0], key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client %s added with key %s\n", args[0], key)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Client key of 3 to 50 letters or digits")
	return cmd
}

func clientShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <clientId>",
		Short: "Prints the backup metrics recorded against a client as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			agg, err := backupmon.ClientMetrics(bmcontext.Background(), config.ClientDb, args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(agg)
		},
	}
}

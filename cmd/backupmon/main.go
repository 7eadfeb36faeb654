package main

import (
	"os"

	"github.com/backupmon/backupmon/cmd/backupmon/cmd"
	"github.com/backupmon/backupmon/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "chatctl",
		Usage:   "Maintenance tasks for the campus messaging and notification backend",
		Version: version,
		Commands: []*cli.Command{
			migrateCommand(),
			repairUnreadCommand(),
			clearReadCommand(),
			broadcastCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "nemnotify",
		Usage: "NEM payment and harvesting notifier CLI",
		Description: `A command-line tool for operating the nemnotify service.

Use this CLI to edit settings, inspect transfers and balances, manage the
check schedules and follow notification events as they happen.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			settingsCommands(),
			transactionsCommand(),
			mosaicCommand(),
			harvestingCommand(),
			notificationsCommand(),
			scheduleCommands(),
			// Local checks and on-demand workflow runs
			{
				Name:  "check",
				Usage: "Run a check locally without sending mail or moving the marker",
				Subcommands: []*cli.Command{
					checkPaymentsCommand(),
					checkHarvestingCommand(),
				},
			},
			{
				Name:  "run",
				Usage: "Run a check now through Temporal",
				Subcommands: []*cli.Command{
					runPaymentsCommand(),
					runHarvestingCommand(),
				},
			},
			streamCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "nemnotify server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue of the worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "nemnotify-checks",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/nemnotify/service/bootstrap"
	"github.com/brojonat/nemnotify/service/config"
	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
	"github.com/brojonat/nemnotify/service/temporal"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// openLocal loads the service configuration from the environment (and .env)
// and opens the same components the worker uses. With the pebble backend
// this fails while a worker holds the state directory.
func openLocal(c *cli.Context) (*bootstrap.Components, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	return bootstrap.Open(c.Context, cfg, nil, logger)
}

// previewPayments runs a payment check for the stored address and marker,
// or the given overrides. Nothing is persisted.
func previewPayments(ctx context.Context, store settings.Store, payments temporal.PaymentChecker, address, marker string) (*notify.PaymentReport, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if address == "" {
		address = s.Address
		if marker == "" {
			marker = s.Marker
		}
	}
	report, err := payments.Check(ctx, address, marker)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// previewHarvesting checks the stored remote account, or the overrides.
func previewHarvesting(ctx context.Context, store settings.Store, harvesting temporal.HarvestingChecker, remote, node string) (*notify.HarvestingReport, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if remote == "" {
		remote = s.HarvestRemote
	}
	if node == "" {
		node = s.HarvestNode
	}
	return harvesting.Check(ctx, remote, node)
}

func printMessage(msg *notify.Message) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Subject: %s\n", msg.Subject)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println(msg.Body)
}

func checkPaymentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "payments",
		Usage: "Show the payment notification the next check would send",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Check this address instead of the stored one",
			},
			&cli.StringFlag{
				Name:  "marker",
				Usage: "Check against this marker instead of the stored one",
			},
		},
		Action: func(c *cli.Context) error {
			comps, err := openLocal(c)
			if err != nil {
				return err
			}
			defer comps.Close()

			report, err := previewPayments(c.Context, comps.Settings, comps.Payments, c.String("address"), c.String("marker"))
			if err != nil {
				return fmt.Errorf("payment check failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(report)
			}
			if report.Message == nil {
				fmt.Printf("No new payments for %s (stop: %s)\n", report.Address, report.Stop)
				if report.Stop == nem.StopFetchError {
					fmt.Printf("⚠ The node could not be queried: %s\n", comps.NEM.LastError())
				}
				return nil
			}
			printMessage(report.Message)
			fmt.Printf("New marker would be: %s\n", report.NewMarker)
			return nil
		},
	}
}

func checkHarvestingCommand() *cli.Command {
	return &cli.Command{
		Name:  "harvesting",
		Usage: "Show the harvesting notification the next check would send",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Check this remote account instead of the stored one",
			},
			&cli.StringFlag{
				Name:  "node",
				Usage: "Ask this node instead of the stored one",
			},
		},
		Action: func(c *cli.Context) error {
			comps, err := openLocal(c)
			if err != nil {
				return err
			}
			defer comps.Close()

			report, err := previewHarvesting(c.Context, comps.Settings, comps.Harvesting, c.String("remote"), c.String("node"))
			if err != nil {
				return fmt.Errorf("harvesting check failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(report)
			}
			if report.Message == nil {
				fmt.Printf("✓ %s is harvesting on %s\n", report.Remote, report.Node)
				return nil
			}
			printMessage(report.Message)
			return nil
		},
	}
}

func temporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}

func runPaymentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "payments",
		Usage: "Run the payment check workflow now and wait for it",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "notify-on-first-run",
				Usage: "Mail existing transfers when no marker is stored",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the workflow",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := temporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.RunPaymentsCheck(ctx, temporal.CheckPaymentsInput{
				NotifyOnFirstRun: c.Bool("notify-on-first-run"),
			})
			if err != nil {
				return fmt.Errorf("payment check workflow failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result)
			}
			switch {
			case result.Skipped:
				fmt.Println("Skipped: no address configured")
			case result.Baselined:
				fmt.Printf("✓ Baseline recorded for %s at %s\n", result.Address, orNone(result.Marker))
			case result.Notified:
				fmt.Printf("✓ Notified %d new payment(s) for %s\n", result.TransactionCount, result.Address)
			default:
				fmt.Printf("No new payments for %s\n", result.Address)
			}
			return nil
		},
	}
}

func runHarvestingCommand() *cli.Command {
	return &cli.Command{
		Name:  "harvesting",
		Usage: "Run the harvesting check workflow now and wait for it",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the workflow",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := temporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.RunHarvestingCheck(ctx)
			if err != nil {
				return fmt.Errorf("harvesting check workflow failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result)
			}
			switch {
			case result.Skipped:
				fmt.Println("Skipped: harvesting remote or node not configured")
			case result.Active:
				fmt.Printf("✓ %s is harvesting\n", result.Remote)
			default:
				fmt.Printf("✗ %s is NOT harvesting (notified: %t)\n", result.Remote, result.Notified)
				if result.LastError != "" {
					fmt.Printf("  Last Error: %s\n", result.LastError)
				}
			}
			return nil
		},
	}
}

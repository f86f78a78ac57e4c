package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brojonat/nemnotify/client"
	"github.com/urfave/cli/v2"
)

// apiClient builds an HTTP client for the --server-url server. Client logs
// go to stderr at error level so they never mix with command output.
func apiClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func settingsCommands() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "View or change the monitored address and harvesting account",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show the current settings",
				Action: func(c *cli.Context) error {
					s, err := apiClient(c).GetSettings(c.Context)
					if err != nil {
						return fmt.Errorf("failed to get settings: %w", err)
					}
					if c.Bool("json") {
						return printJSON(s)
					}
					printSettings(s)
					return nil
				},
			},
			{
				Name:  "set",
				Usage: "Change settings; pass an empty value to clear a field",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "address",
						Usage: "Address to watch for incoming payments",
					},
					&cli.StringFlag{
						Name:  "harvest-remote",
						Usage: "Remote account to watch for harvesting",
					},
					&cli.StringFlag{
						Name:  "harvest-node",
						Usage: "Node the remote account harvests on (host or host:port)",
					},
				},
				Action: func(c *cli.Context) error {
					u := settingsUpdateFromFlags(c)
					if u.Address == nil && u.HarvestRemote == nil && u.HarvestNode == nil {
						return fmt.Errorf("nothing to change: pass --address, --harvest-remote or --harvest-node")
					}
					s, err := apiClient(c).UpdateSettings(c.Context, u)
					if err != nil {
						return fmt.Errorf("failed to update settings: %w", err)
					}
					if c.Bool("json") {
						return printJSON(s)
					}
					fmt.Printf("✓ Settings updated\n")
					printSettings(s)
					return nil
				},
			},
		},
	}
}

// settingsUpdateFromFlags only includes flags that were set, so an explicit
// empty value clears the field while an omitted flag leaves it alone.
func settingsUpdateFromFlags(c *cli.Context) client.SettingsUpdate {
	var u client.SettingsUpdate
	if c.IsSet("address") {
		v := c.String("address")
		u.Address = &v
	}
	if c.IsSet("harvest-remote") {
		v := c.String("harvest-remote")
		u.HarvestRemote = &v
	}
	if c.IsSet("harvest-node") {
		v := c.String("harvest-node")
		u.HarvestNode = &v
	}
	return u
}

func printSettings(s *client.Settings) {
	fmt.Printf("Address:        %s\n", orNone(s.Address))
	if s.Network != "" {
		fmt.Printf("Network:        %s\n", s.Network)
	}
	fmt.Printf("Marker:         %s\n", orNone(s.Marker))
	fmt.Printf("Harvest Remote: %s\n", orNone(s.HarvestRemote))
	fmt.Printf("Harvest Node:   %s\n", orNone(s.HarvestNode))
	if !s.UpdatedAt.IsZero() {
		fmt.Printf("Updated:        %s\n", s.UpdatedAt.Format(time.RFC3339))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func transactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Aliases:   []string{"txns", "tx"},
		Usage:     "List transfers of an address newer than a marker",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "marker",
				Usage: "Only list transfers newer than this transaction hash",
			},
			&cli.BoolFlag{
				Name:  "outgoing",
				Usage: "List outgoing instead of incoming transfers",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter each transaction must satisfy (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			direction := "incoming"
			if c.Bool("outgoing") {
				direction = "outgoing"
			}

			list, err := apiClient(c).Transactions(c.Context, address, c.String("marker"), direction)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			list.Transactions, err = filterTransactions(list.Transactions, filters)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(list)
			}

			fmt.Printf("%d %s transfer(s) for %s (pages: %d, stop: %s)\n",
				len(list.Transactions), list.Direction, list.Address, list.Pages, list.Stop)
			if list.Error != "" {
				fmt.Printf("⚠ Stopped early: %s\n", list.Error)
			}
			// Oldest first, the way notifications list them
			for i := len(list.Transactions) - 1; i >= 0; i-- {
				txn := list.Transactions[i]
				line := fmt.Sprintf("  %s  %s XEM  from %s", txn.Timestamp.Format(time.RFC3339), txn.Amount, txn.Signer)
				if txn.Multisig {
					line += "  (multisig)"
				}
				if txn.Message != "" {
					line += fmt.Sprintf("  %q", txn.Message)
				}
				fmt.Println(line)
				fmt.Printf("    %s\n", txn.Hash)
			}
			if list.Marker != "" {
				fmt.Printf("Newest: %s\n", list.Marker)
			}
			return nil
		},
	}
}

func mosaicCommand() *cli.Command {
	return &cli.Command{
		Name:      "mosaic",
		Usage:     "Show how much of a mosaic an address holds",
		ArgsUsage: "ADDRESS NAMESPACE:NAME",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "divisibility",
				Usage: "Decimal places of the mosaic",
				Value: 0,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("address and mosaic (namespace:name) are required")
			}
			address := c.Args().Get(0)
			namespace, name, ok := strings.Cut(c.Args().Get(1), ":")
			if !ok || namespace == "" || name == "" {
				return fmt.Errorf("mosaic must be namespace:name, got %q", c.Args().Get(1))
			}

			q, err := apiClient(c).MosaicQuantity(c.Context, address, namespace, name, c.Int("divisibility"))
			if err != nil {
				return fmt.Errorf("failed to get mosaic quantity: %w", err)
			}
			if c.Bool("json") {
				return printJSON(q)
			}
			quantity := "unknown"
			if q.Known && q.Quantity != nil {
				quantity = *q.Quantity
			}
			fmt.Printf("%s:%s held by %s: %s\n", q.Namespace, q.Name, q.Address, quantity)
			return nil
		},
	}
}

func harvestingCommand() *cli.Command {
	return &cli.Command{
		Name:  "harvesting",
		Usage: "Check whether the remote account is harvesting",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Remote account (defaults to the stored setting)",
			},
			&cli.StringFlag{
				Name:  "node",
				Usage: "Node to ask (defaults to the stored setting)",
			},
		},
		Action: func(c *cli.Context) error {
			status, err := apiClient(c).Harvesting(c.Context, c.String("remote"), c.String("node"))
			if err != nil {
				return fmt.Errorf("failed to check harvesting: %w", err)
			}
			if c.Bool("json") {
				return printJSON(status)
			}
			if status.Active {
				fmt.Printf("✓ %s is harvesting on %s\n", status.Remote, status.Node)
			} else {
				fmt.Printf("✗ %s is NOT harvesting on %s\n", status.Remote, status.Node)
			}
			fmt.Printf("  Status: %s\n", orNone(status.Status))
			if status.LastError != "" {
				fmt.Printf("  Last Error: %s\n", status.LastError)
			}
			return nil
		},
	}
}

func notificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "List recently sent notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only list payment or harvesting notifications",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of notifications",
				Value: 20,
			},
		},
		Action: func(c *cli.Context) error {
			notifications, err := apiClient(c).Notifications(c.Context, c.String("kind"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}
			if c.Bool("json") {
				return printJSON(notifications)
			}
			if len(notifications) == 0 {
				fmt.Println("No notifications sent yet")
				return nil
			}
			for _, n := range notifications {
				fmt.Printf("#%d  %s  %-10s  %s\n", n.ID, n.SentAt.Format(time.RFC3339), n.Kind, n.Subject)
			}
			return nil
		},
	}
}

func scheduleCommands() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage the periodic check schedules",
		Subcommands: []*cli.Command{
			{
				Name:    "set",
				Aliases: []string{"create", "update"},
				Usage:   "Create or update both check schedules",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Value:   time.Hour,
						Usage:   "How often to run the checks (e.g., 30m, 1h)",
					},
					&cli.BoolFlag{
						Name:  "notify-on-first-run",
						Usage: "Mail existing transfers instead of silently recording a baseline",
					},
				},
				Action: func(c *cli.Context) error {
					interval := c.Duration("interval")
					if err := apiClient(c).UpsertSchedules(c.Context, interval, c.Bool("notify-on-first-run")); err != nil {
						return fmt.Errorf("failed to set schedules: %w", err)
					}
					fmt.Printf("✓ Checks scheduled every %s\n", interval)
					return nil
				},
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Delete both check schedules",
				Action: func(c *cli.Context) error {
					if err := apiClient(c).DeleteSchedules(c.Context); err != nil {
						return fmt.Errorf("failed to delete schedules: %w", err)
					}
					fmt.Printf("✓ Check schedules deleted\n")
					return nil
				},
			},
			{
				Name:    "describe",
				Aliases: []string{"desc"},
				Usage:   "Describe both check schedules (talks to Temporal directly)",
				Action: func(c *cli.Context) error {
					tc, err := temporalClient(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					statuses, err := tc.DescribeCheckSchedules(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(statuses)
					}
					for _, st := range statuses {
						fmt.Printf("Schedule ID:  %s\n", st.ID)
						fmt.Printf("  Interval:   every %s\n", st.Interval)
						fmt.Printf("  Paused:     %v\n", st.Paused)
						if st.Note != "" {
							fmt.Printf("  Note:       %s\n", st.Note)
						}
						if st.LastAction != nil {
							fmt.Printf("  Last Run:   %s\n", st.LastAction.Format(time.RFC3339))
						}
						if st.NextAction != nil {
							fmt.Printf("  Next Run:   %s\n", st.NextAction.Format(time.RFC3339))
						}
					}
					return nil
				},
			},
			{
				Name:  "pause",
				Usage: "Pause both check schedules (talks to Temporal directly)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "note",
						Usage: "Note explaining why the checks are paused",
						Value: "Paused via nemnotify CLI",
					},
				},
				Action: func(c *cli.Context) error {
					tc, err := temporalClient(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.PauseCheckSchedules(c.Context, c.String("note")); err != nil {
						return err
					}
					fmt.Printf("✓ Check schedules paused\n")
					return nil
				},
			},
			{
				Name:  "resume",
				Usage: "Resume both check schedules (talks to Temporal directly)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "note",
						Usage: "Note explaining why the checks are resumed",
						Value: "Resumed via nemnotify CLI",
					},
				},
				Action: func(c *cli.Context) error {
					tc, err := temporalClient(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.ResumeCheckSchedules(c.Context, c.String("note")); err != nil {
						return err
					}
					fmt.Printf("✓ Check schedules resumed\n")
					return nil
				},
			},
		},
	}
}

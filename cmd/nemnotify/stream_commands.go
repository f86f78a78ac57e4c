package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/nemnotify/service/nats"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Follow payment or harvesting events via SSE",
		ArgsUsage: "payments|harvesting [ADDRESS]",
		Action: func(c *cli.Context) error {
			kind := c.Args().Get(0)
			if kind != "payments" && kind != "harvesting" {
				return fmt.Errorf("stream kind must be payments or harvesting")
			}
			address := c.Args().Get(1)
			jsonOutput := c.Bool("json")

			url := fmt.Sprintf("%s/api/v1/stream/%s", c.String("server-url"), kind)
			if address != "" {
				if kind != "payments" {
					return fmt.Errorf("only the payments stream can be filtered by address")
				}
				url += "/" + address
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			client := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming %s events... (Ctrl+C to stop)\n\n", kind)
			}

			err = readEvents(resp.Body, func(event, data string) {
				if err := handleSSEEvent(os.Stdout, event, data, jsonOutput); err != nil {
					fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
				}
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nDisconnected\n")
			}
			return nil
		},
	}
}

// readEvents parses an SSE stream and calls fn for every complete event.
// Comment lines (keepalives) are ignored.
func readEvents(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				fn(currentEvent, currentData)
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleSSEEvent(w io.Writer, eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected", "error":
		if eventType == "error" || !jsonOutput {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", eventType, data)
		}
		return nil

	case "payment":
		if jsonOutput {
			fmt.Fprintln(w, data)
			return nil
		}
		var event natspkg.PaymentEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode payment event: %w", err)
		}
		line := fmt.Sprintf("💰 %s  %s XEM to %s from %s",
			event.Timestamp.Format(time.RFC3339), event.Amount, event.Address, event.Signer)
		if event.Multisig {
			line += " (multisig)"
		}
		if event.Message != "" {
			line += fmt.Sprintf("  %q", event.Message)
		}
		fmt.Fprintln(w, line)
		return nil

	case "harvesting":
		if jsonOutput {
			fmt.Fprintln(w, data)
			return nil
		}
		var event natspkg.HarvestingEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode harvesting event: %w", err)
		}
		state := "harvesting"
		if !event.Active {
			state = "NOT harvesting"
		}
		line := fmt.Sprintf("%s  %s is %s on %s", event.PublishedAt.Format(time.RFC3339), event.Remote, state, event.Node)
		if event.LastError != "" {
			line += fmt.Sprintf(" (%s)", event.LastError)
		}
		fmt.Fprintln(w, line)
		return nil

	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}
}

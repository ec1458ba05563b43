// ABOUTME: Entry point for the treesync CLI
// ABOUTME: Replays recorded change events against a local cache and prints the tree

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: treesync <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  replay [flags] EVENTS  Apply a JSON-lines event file and print the cache")
		fmt.Println("      --config PATH      Config file (default $TREESYNC_CONFIG)")
		fmt.Println("      --trace            Print the merge patch of every change")
		fmt.Println("      --metrics PATH     Write Prometheus metrics to a textfile")
		fmt.Println("  version                Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "replay":
		err = runReplay(ctx, os.Args[2:])
	case "version":
		color.New(color.FgHiBlack).Printf("treesync %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// replayArgs holds the parsed arguments of the replay command.
type replayArgs struct {
	configPath  string
	eventsPath  string
	metricsPath string
	trace       bool
}

// parseReplayArgs supports both "--flag value" and "--flag=value".
// The config path falls back to TREESYNC_CONFIG.
func parseReplayArgs(args []string) (replayArgs, error) {
	var out replayArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--config requires a value")
			}
			out.configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			out.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--metrics":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--metrics requires a value")
			}
			out.metricsPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--metrics="):
			out.metricsPath = strings.TrimPrefix(arg, "--metrics=")
		case arg == "--trace":
			out.trace = true
		case arg == "-":
			out.eventsPath = arg
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			if out.eventsPath != "" {
				return out, fmt.Errorf("unexpected argument: %s", arg)
			}
			out.eventsPath = arg
		}
	}

	if out.eventsPath == "" {
		return out, fmt.Errorf("an events file is required (use - for stdin)")
	}
	if out.configPath == "" {
		out.configPath = os.Getenv("TREESYNC_CONFIG")
	}
	return out, nil
}

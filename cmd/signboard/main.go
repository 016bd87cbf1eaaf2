package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "ingest":
		if hasHelpFlag(args) {
			printIngestHelp()
			return 0
		}
		return runIngest(args, os.Stdout)
	case "monitor":
		if hasHelpFlag(args) {
			printMonitorHelp()
			return 0
		}
		return runMonitor(args)
	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args, os.Stdout)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `signboard - live signage dashboard with a media ingestion pipeline

Usage:
  signboard <noun> <action> [flags]
  signboard <command> [flags]

System Commands:
  system start      Start the dashboard service in foreground
  system monitor    Terminal view of a running service's events

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Record BLAKE3 checksums of the config tree
  config show       Print the effective configuration (secrets redacted)

Pipeline Commands:
  ingest            Assemble a playlist once and print it as JSON

General:
  start             Alias for 'system start'
  monitor           Alias for 'system monitor'
  version           Show version information
  help              Show this help message

Config discovery: --config, $SIGNBOARD_CONFIG, ./config.yaml
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "monitor":
		if hasHelpFlag(actionArgs) {
			printMonitorHelp()
			return 0
		}
		return runMonitor(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs, os.Stdout)
	case "lock":
		return runConfigLock(actionArgs, os.Stdout)
	case "show":
		return runConfigShow(actionArgs, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: signboard system <action>")
	fmt.Fprintln(w, "Actions: start, monitor")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: signboard config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printSystemStartHelp() {
	fmt.Println(`Usage: signboard system start [--config PATH]

Runs the HTTP API, display websocket and snapshot writer until SIGINT/SIGTERM.`)
}

func printIngestHelp() {
	fmt.Println(`Usage: signboard ingest [--config PATH] (--items FILE | --pdf FILE) [--duration N]

Runs the ingestion pipeline once against the configured remote store and
prints the resulting playlist. --items reads a JSON array of playlist items
("-" for stdin); --pdf submits a single local PDF.`)
}

func printMonitorHelp() {
	fmt.Println(`Usage: signboard monitor [--url URL] [--token TOKEN]

Follows the /events stream of a running service. The token defaults to
$SIGNBOARD_TOKEN and needs the events:ro scope when auth is enabled.`)
}

package main

import (
	"fmt"
	"io"
	"os"
)

func printUsage() {
	fmt.Print(`irqd - priority interrupt dispatcher

Usage:
  irqd [<noun> <action>] [flags]

With no arguments irqd runs "system start" with the discovered config.

System Commands:
  system start      Run the dispatcher in the foreground (aliases: start, run)
  system watch      Live TUI fed by the API event stream (alias: watch)

Config Commands:
  config check      Validate the config and print its fingerprint
  config show       Print the effective config (secrets redacted)
  config get <path> Print one value, e.g. dispatch.io_timeout

Journal Commands:
  journal tail      Show recently handled interrupts

General:
  version           Show version information
  help              Show this help message

Config discovery: --config, $IRQD_CONFIG, ~/.config/irqd/config.yaml,
/etc/irqd/config.yaml, ./config.yaml, then built-in defaults.
`)
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: irqd system <start|watch> [flags]")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: irqd config <check|show|get> [--config PATH] [flags]")
}

func printJournalNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: irqd journal tail [--config PATH | --db PATH] [--limit N] [--json]")
}

func printSystemStartHelp() {
	fmt.Println("Usage: irqd system start [--config PATH] [--count N]")
	fmt.Println()
	fmt.Println("Starts the dispatcher and the simulated interrupt driver. When the driver")
	fmt.Println("has produced all of its interrupts the queue is drained and irqd exits.")
	fmt.Println("With driver.count 0 and the API enabled, irqd runs until signalled.")
	fmt.Println()
	fmt.Println("The first SIGINT/SIGTERM stops the driver and drains the queue; a second")
	fmt.Println("one aborts after the interrupt in progress.")
}

func printSystemWatchHelp() {
	fmt.Fprintln(os.Stdout, "Usage: irqd system watch [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    irqd API URL (default: http://127.0.0.1:8090)")
	fmt.Println("  --api-key KEY    API Bearer Token (or IRQD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  up/down          Scroll interrupts")
}

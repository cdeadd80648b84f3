// Command strategy-log views and analyzes request event logs.
//
// Event logs are written by strategy-sim (and any client configured with
// logging.event_log) as a stream of CBOR records.
//
// Usage:
//
//	strategy-log <command> [flags] <file.rlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only gate decisions that denied a request
//	strategy-log view --denied sim.rlog
//
//	# View the notification stream strategy
//	strategy-log view --strategy notification-stream sim.rlog
//
//	# Export responses to CSV
//	strategy-log export --format csv --category response sim.rlog
//
//	# Show statistics
//	strategy-log stats sim.rlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wireapp/go-request-strategy/cmd/strategy-log/commands"
)

const usage = `strategy-log - Request Strategy Event Log Analyzer

Usage:
  strategy-log <command> [flags] <file.rlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "strategy-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the event selection flags shared by view, export and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.Strategy, "strategy", "", "Filter by strategy name")
	fs.StringVar(&opts.RequestID, "request-id", "", "Filter by request ID")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (request, response, gate, state, error)")
	fs.BoolVar(&opts.DeniedOnly, "denied", false, "Only gate decisions that denied requests")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return opts
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `strategy-log %s - %s

Usage:
  strategy-log %s [flags] <file.rlog>

Flags:
`, name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg parses args and returns the log file path.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View log file in human-readable format")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	filter, err := opts.BuildFilter()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export log file to JSONL or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	filter, err := opts.BuildFilter()
	if err != nil {
		fail(err)
	}
	if err := commands.RunExport(path, *format, *output, filter); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter log file and write to new file")
	opts := filterFlags(fs)
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	path := pathArg(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, *opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the log file")
	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

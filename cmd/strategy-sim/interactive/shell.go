// Package interactive provides the interactive command-line interface
// for strategy-sim.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/client"
	"github.com/wireapp/go-request-strategy/pkg/featureconfig"
	"github.com/wireapp/go-request-strategy/pkg/notificationstream"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
)

// Publisher injects notifications into a simulated backend.
type Publisher interface {
	// Publish appends a notification with one event of the given type
	// and returns its ID.
	Publish(eventType string) string
}

// Shell handles interactive mode for strategy-sim.
type Shell struct {
	client    *client.Client
	publisher Publisher
	rl        *readline.Instance
}

// New creates a new shell. publisher may be nil when talking to a real
// backend. The shell must be bound to a client before Run.
func New(publisher Publisher) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		publisher: publisher,
		rl:        rl,
	}, nil
}

// Bind attaches the shell to a client and subscribes to its changes.
func (s *Shell) Bind(c *client.Client) {
	s.client = c
	c.Status.OnChange(s.displayStatusChange)
	c.Features.OnChange(s.displayFeatureChange)
}

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Delegate returns a notification stream delegate that prints to the shell.
func (s *Shell) Delegate() notificationstream.Delegate {
	return shellDelegate{out: s.rl.Stdout}
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "status", "st":
			s.cmdStatus()

		case "sync":
			s.cmdSync(args)

		case "background", "bg":
			s.cmdBackground(args)

		case "push":
			s.cmdPush(args)

		case "features", "f":
			s.cmdFeatures(args)

		case "options", "opt":
			s.cmdOptions(args)

		case "stats":
			s.cmdStats()

		case "retry-version":
			s.cmdRetryVersion()

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Strategy Simulator Commands:
  Application status:
    status                 - Show status, prerequisites and strategy gates
    sync <state>           - Set sync state: unauthenticated, slow, quick, online
    background on|off      - Move the app to the background or foreground

  Requests:
    push [event-id]        - Fetch the notification stream up to an event
                             (without an ID a new event is published first)
    features [name]        - Request one or all feature configs
    features show          - Show stored feature configs
    stats                  - Show operation loop counters
    retry-version          - Resume API version negotiation after a failure

  Options:
    options [expr]         - Decode an option expression, e.g. online|background

  General:
    help                   - Show this help
    quit                   - Exit`)
}

func (s *Shell) cmdStatus() {
	out := s.rl.Stdout()
	st := s.client.Status.Snapshot()
	pre := strategy.Prerequisites(st)

	fmt.Fprintf(out, "Status:        %s\n", st)
	fmt.Fprintf(out, "Prerequisites: %s\n", pre)
	if v, ok := s.client.Versions.Current(); ok {
		fmt.Fprintf(out, "API version:   %s\n", v)
	} else {
		fmt.Fprintln(out, "API version:   (not negotiated)")
	}
	fmt.Fprintf(out, "Push status:   %s\n", s.client.Push.Status())
	if id := s.client.StreamSync.LastNotificationID(); id != "" {
		fmt.Fprintf(out, "Stream pos:    %s\n", id)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tALLOWED\tCONFIGURATION")
	for _, b := range s.client.Strategies() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Name(), yesNo(b.IsAllowed()), b.Configuration())
	}
	tw.Flush()
}

func (s *Shell) cmdSync(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: sync <unauthenticated|slow|quick|online>")
		return
	}
	state, err := appstatus.ParseSyncState(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.client.Status.SetSyncState(state)
}

func (s *Shell) cmdBackground(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: background on|off")
		return
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		s.client.Status.SetOperationState(appstatus.OperationStateBackground)
	case "off", "false", "0":
		s.client.Status.SetOperationState(appstatus.OperationStateForeground)
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: background on|off")
	}
}

func (s *Shell) cmdPush(args []string) {
	var eventID string
	switch {
	case len(args) > 0:
		eventID = args[0]
	case s.publisher != nil:
		eventID = s.publisher.Publish("user.properties-set")
		fmt.Fprintf(s.rl.Stdout(), "Published notification %s\n", eventID)
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: push <event-id>")
		return
	}

	out := s.rl.Stdout()
	s.client.Push.Fetch(eventID, func() {
		fmt.Fprintf(out, "[push] fetch of %s completed\n", eventID)
	})
}

func (s *Shell) cmdFeatures(args []string) {
	if len(args) == 0 {
		s.client.FeatureSync.RequestAllConfigs()
		fmt.Fprintln(s.rl.Stdout(), "Requested all feature configs")
		return
	}
	if args[0] == "show" {
		s.showFeatures()
		return
	}
	s.client.FeatureSync.RequestConfig(args[0])
	fmt.Fprintf(s.rl.Stdout(), "Requested feature config %q\n", args[0])
}

func (s *Shell) showFeatures() {
	out := s.rl.Stdout()
	names := s.client.Features.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "No feature configs stored")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tSTATUS\tCONFIG")
	for _, name := range names {
		f, err := s.client.Features.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Status, string(f.Config))
	}
	tw.Flush()

	if _, cfg, err := s.client.Features.AppLock(); err == nil {
		fmt.Fprintf(out, "\nApp lock: enforce=%v timeout=%ds\n", cfg.EnforceAppLock, cfg.InactivityTimeoutSecs)
	}
}

func (s *Shell) cmdOptions(args []string) {
	out := s.rl.Stdout()
	if len(args) == 0 {
		for _, f := range strategy.Known.Flags() {
			fmt.Fprintf(out, "  %-28s 0x%02x\n", f, uint32(f))
		}
		return
	}

	o, err := strategy.ParseOption(strings.Join(args, "|"))
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	st := s.client.Status.Snapshot()
	fmt.Fprintf(out, "Option:  %s (0x%02x)\n", o, uint32(o))
	fmt.Fprintf(out, "Allowed: %s in %s\n", yesNo(strategy.Allows(o, st)), st)
}

func (s *Shell) cmdStats() {
	st := s.client.Loop.Stats()
	out := s.rl.Stdout()
	fmt.Fprintf(out, "Sent:             %d\n", st.Sent)
	fmt.Fprintf(out, "Succeeded:        %d\n", st.Succeeded)
	fmt.Fprintf(out, "Temporary errors: %d\n", st.TemporaryFailed)
	fmt.Fprintf(out, "Permanent errors: %d\n", st.PermanentFailed)
	fmt.Fprintf(out, "Expired:          %d\n", st.Expired)
}

func (s *Shell) cmdRetryVersion() {
	out := s.rl.Stdout()
	if v, ok := s.client.Versions.Current(); ok {
		fmt.Fprintf(out, "API version already negotiated: %s\n", v)
		return
	}
	if !s.client.VersionSync.GaveUp() {
		fmt.Fprintln(out, "Negotiation is still in progress")
		return
	}
	s.client.VersionSync.Retry()
	fmt.Fprintln(out, "Retrying API version negotiation")
}

func (s *Shell) displayStatusChange(old, current appstatus.Status) {
	fmt.Fprintf(s.rl.Stdout(), "[status] %s -> %s\n", old, current)
}

func (s *Shell) displayFeatureChange(f featureconfig.Feature) {
	fmt.Fprintf(s.rl.Stdout(), "[features] %s is %s\n", f.Name, f.Status)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

type shellDelegate struct {
	out func() io.Writer
}

func (d shellDelegate) FetchedEvents(events []notificationstream.Event, hasMore bool) {
	w := d.out()
	for _, e := range events {
		fmt.Fprintf(w, "[stream] %s %s\n", e.NotificationID, e.Type)
	}
	if hasMore {
		fmt.Fprintln(w, "[stream] more pages pending")
	}
}

func (d shellDelegate) FailedFetchingEvents() {
	fmt.Fprintln(d.out(), "[stream] fetch failed")
}

func (d shellDelegate) DetectedGap() {
	fmt.Fprintln(d.out(), "[stream] gap detected, a slow sync is required")
}

// Command strategy-sim drives the request strategies against a backend.
//
// Without -backend an in-process fake backend is started, so the gating
// behaviour can be explored without network access.
//
// Usage:
//
//	strategy-sim [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-backend string      Backend base URL (default: in-process fake backend)
//	-client-id string    Client ID sent with notification requests
//	-team-id string      Team ID used for feature config requests
//	-state-file string   Client state file
//	-event-log string    CBOR event log file
//	-sync string         Initial sync state (default "unauthenticated")
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-interactive         Start the interactive shell (default true)
//	-publish-interval    Publish interval for the fake backend in batch mode
//
// Examples:
//
//	# Explore the gates interactively
//	strategy-sim
//
//	# Run unattended against the fake backend, recording events
//	strategy-sim -interactive=false -sync online -event-log /tmp/sim.rlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wireapp/go-request-strategy/cmd/strategy-sim/interactive"
	"github.com/wireapp/go-request-strategy/pkg/client"
	"github.com/wireapp/go-request-strategy/pkg/config"
	"github.com/wireapp/go-request-strategy/pkg/notificationstream"
)

// Flags holds the command line settings that override the config file.
type Flags struct {
	ConfigFile      string
	Backend         string
	ClientID        string
	TeamID          string
	StateFile       string
	EventLog        string
	Sync            string
	LogLevel        string
	Interactive     bool
	PublishInterval time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Backend, "backend", "", "Backend base URL (default: in-process fake backend)")
	flag.StringVar(&flags.ClientID, "client-id", "", "Client ID sent with notification requests")
	flag.StringVar(&flags.TeamID, "team-id", "", "Team ID used for feature config requests")
	flag.StringVar(&flags.StateFile, "state-file", "", "Client state file")
	flag.StringVar(&flags.EventLog, "event-log", "", "CBOR event log file")
	flag.StringVar(&flags.Sync, "sync", "", "Initial sync state: unauthenticated, slow, quick, online")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", true, "Start the interactive shell")
	flag.DurationVar(&flags.PublishInterval, "publish-interval", 5*time.Second, "Publish interval for the fake backend in batch mode")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "strategy-sim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var backend *fakeBackend
	if cfg.Backend.URL == "" {
		backend = newFakeBackend()
		defer backend.Close()
		cfg.Backend.URL = backend.URL()
		if cfg.Backend.TeamID == "" {
			cfg.Backend.TeamID = "sim-team"
		}
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	var (
		shell    *interactive.Shell
		delegate notificationstream.Delegate
		logOut   io.Writer = os.Stderr
	)
	if flags.Interactive {
		var publisher interactive.Publisher
		if backend != nil {
			publisher = backend
		}
		shell, err = interactive.New(publisher)
		if err != nil {
			return err
		}
		delegate = shell.Delegate()
		logOut = shell.Stderr()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	c, err := client.New(cfg, client.Options{
		Delegate: delegate,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if shell != nil {
		shell.Bind(c)
	}

	logger.Info("starting strategy simulator",
		"backend", cfg.Backend.URL,
		"status", c.Status.Snapshot(),
		"fake_backend", backend != nil)

	if err := c.Start(); err != nil {
		_ = c.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return c.Close()
	})

	switch {
	case shell != nil:
		g.Go(func() error {
			shell.Run(ctx, cancel)
			return nil
		})
	case backend != nil:
		g.Go(func() error {
			return publishLoop(ctx, backend, c, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Backend != "" {
		cfg.Backend.URL = flags.Backend
	}
	if flags.ClientID != "" {
		cfg.Backend.ClientID = flags.ClientID
	}
	if flags.TeamID != "" {
		cfg.Backend.TeamID = flags.TeamID
	}
	if flags.StateFile != "" {
		cfg.StateFile = flags.StateFile
	}
	if flags.EventLog != "" {
		cfg.Logging.EventLog = flags.EventLog
	}
	if flags.Sync != "" {
		cfg.InitialStatus.Sync = flags.Sync
	}
	if flags.LogLevel != "" {
		cfg.Logging.Level = flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// publishLoop periodically publishes a notification on the fake backend and
// fetches the stream up to it.
func publishLoop(ctx context.Context, backend *fakeBackend, c *client.Client, logger *slog.Logger) error {
	ticker := time.NewTicker(flags.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			id := backend.Publish("user.properties-set")
			c.Push.Fetch(id, func() {
				logger.Info("notification fetched", "id", id, "position", c.StreamSync.LastNotificationID())
			})
		}
	}
}

// Package commands implements the strategy-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [strategy] CATEGORY [req:id]
	ts := event.Timestamp.UTC().Format(timestampLayout)
	name := event.Strategy
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(w, "%s [%s] %s", ts, name, event.Category.String())
	if event.RequestID != "" {
		fmt.Fprintf(w, " [req:%s]", shortenID(event.RequestID))
	}
	fmt.Fprintln(w)

	switch {
	case event.Request != nil:
		formatRequestDetails(w, event.Request)
	case event.Response != nil:
		formatResponseDetails(w, event.Response)
	case event.Gate != nil:
		formatGateDetails(w, event.Gate)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a request ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatRequestDetails(w io.Writer, req *log.RequestEvent) {
	fmt.Fprintf(w, "  %s %s (v%d)\n", req.Method, req.Path, req.APIVersion)
	if req.Background {
		fmt.Fprintln(w, "  Background: yes")
	}
}

func formatResponseDetails(w io.Writer, resp *log.ResponseEvent) {
	fmt.Fprintf(w, "  Status: %d (%s)\n", resp.HTTPStatus, resp.Result)
	if resp.PayloadSize > 0 {
		fmt.Fprintf(w, "  Payload: %d bytes\n", resp.PayloadSize)
	}
	if resp.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(resp.Duration))
	}
}

func formatGateDetails(w io.Writer, gate *log.GateEvent) {
	decision := "DENIED"
	if gate.Allowed {
		decision = "ALLOWED"
	}
	fmt.Fprintf(w, "  Decision: %s\n", decision)
	fmt.Fprintf(w, "  Configuration: %s\n", strategy.Option(gate.Configuration))
	fmt.Fprintf(w, "  Prerequisites: %s\n", strategy.Option(gate.Prerequisites))
	if !gate.Allowed {
		missing := strategy.Option(gate.Prerequisites).Without(strategy.Option(gate.Configuration))
		if !missing.IsEmpty() {
			fmt.Fprintf(w, "  Missing: %s\n", missing)
		}
	}
	if gate.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", gate.Status)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "request":
		return log.CategoryRequest, nil
	case "response":
		return log.CategoryResponse, nil
	case "gate":
		return log.CategoryGate, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be request, response, gate, state, or error)", s)
	}
}

// RunView writes all events matching filter to output.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}

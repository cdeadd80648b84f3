package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Strategies       map[string]*StrategyStats
	StateChanges     int
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// StrategyStats holds statistics for a single strategy.
type StrategyStats struct {
	FirstSeen time.Time
	Requests  int
	Responses int
	Failures  int
	Allowed   int
	Denied    int

	// TotalDuration sums the durations of all responses.
	TotalDuration time.Duration

	// LastGate is the most recent gate decision, nil if none was logged.
	LastGate *log.GateEvent
}

// AverageDuration returns the mean response duration.
func (s *StrategyStats) AverageDuration() time.Duration {
	if s.Responses == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Responses)
}

// Collect reads the log file and aggregates its events.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Strategies:       make(map[string]*StrategyStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.StateChange != nil {
		s.StateChanges++
	}
	if event.Error != nil {
		s.Errors++
	}

	if event.Strategy == "" {
		return
	}
	st, ok := s.Strategies[event.Strategy]
	if !ok {
		st = &StrategyStats{FirstSeen: event.Timestamp}
		s.Strategies[event.Strategy] = st
	}
	switch {
	case event.Request != nil:
		st.Requests++
	case event.Response != nil:
		st.Responses++
		st.TotalDuration += event.Response.Duration
		if event.Response.Result != transport.ResultSuccess.String() {
			st.Failures++
		}
	case event.Gate != nil:
		if event.Gate.Allowed {
			st.Allowed++
		} else {
			st.Denied++
		}
		gate := *event.Gate
		st.LastGate = &gate
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Request Strategy Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryRequest, log.CategoryResponse, log.CategoryGate, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Strategies: %d\n", len(stats.Strategies))
	names := make([]string, 0, len(stats.Strategies))
	for name := range stats.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := stats.Strategies[name]
		fmt.Fprintf(w, "  [%s] %d requests, %d responses, %d failed", name, st.Requests, st.Responses, st.Failures)
		if st.Responses > 0 {
			fmt.Fprintf(w, ", avg %s", formatDuration(st.AverageDuration()))
		}
		fmt.Fprintln(w)
		if st.Allowed+st.Denied > 0 {
			fmt.Fprintf(w, "           Gate: %d allowed, %d denied\n", st.Allowed, st.Denied)
		}
	}

	if stats.StateChanges > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "State Changes: %d\n", stats.StateChanges)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output     string
	Strategy   string
	RequestID  string
	Category   string
	DeniedOnly bool
	TimeStart  string
	TimeEnd    string
}

// BuildFilter converts command-line options into a log.Filter.
func (o FilterOptions) BuildFilter() (log.Filter, error) {
	filter := log.Filter{
		Strategy:   o.Strategy,
		RequestID:  o.RequestID,
		DeniedOnly: o.DeniedOnly,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the events matching opts into a new log file and
// returns the number of events written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.BuildFilter()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	if dropped := logger.Dropped(); dropped > 0 {
		return count - dropped, fmt.Errorf("failed to encode %d events", dropped)
	}
	return count, nil
}

package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
)

// RunExport exports the events matching filter to the given format.
func RunExport(path, format, output string, filter log.Filter) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{"timestamp", "category", "strategy", "request_id", "detail", "status", "allowed", "configuration"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	var detail, status, allowed, configuration string
	switch {
	case event.Request != nil:
		detail = event.Request.Method + " " + event.Request.Path
	case event.Response != nil:
		detail = event.Response.Result
		status = strconv.Itoa(event.Response.HTTPStatus)
	case event.Gate != nil:
		detail = event.Gate.Status
		allowed = strconv.FormatBool(event.Gate.Allowed)
		configuration = strategy.Option(event.Gate.Configuration).String()
	case event.StateChange != nil:
		detail = event.StateChange.Entity.String() + " " + event.StateChange.NewState
	case event.Error != nil:
		detail = event.Error.Message
	}

	return []string{
		event.Timestamp.UTC().Format(timestampLayout),
		event.Category.String(),
		event.Strategy,
		event.RequestID,
		detail,
		status,
		allowed,
		configuration,
	}
}

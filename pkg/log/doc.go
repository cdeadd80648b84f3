// Package log provides structured request event logging.
//
// This package defines the Logger interface and Event types for capturing
// what the request layer decided and did: which strategy was allowed or
// denied by the gate, which requests went out, how the backend answered and
// how the application status changed. It is separate from operational
// logging (slog) - the event log is a complete machine-readable trace for
// debugging sync problems.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	events := log.NewSlogAdapter(slog.Default())
//
//	// For field diagnostics: write to a binary file
//	events, _ := log.NewFileLogger("/var/log/wire/requests.rlog")
//
//	// Both
//	events := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with integer keys and the .rlog extension.
// Use Reader to stream them back, optionally filtered.
package log

package log

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeEvents(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.rlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestReaderNext(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeEvents(t,
		Event{Timestamp: base, Category: CategoryRequest, RequestID: "a"},
		Event{Timestamp: base.Add(time.Second), Category: CategoryResponse, RequestID: "a"},
	)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	for _, want := range []Category{CategoryRequest, CategoryResponse} {
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if e.Category != want {
			t.Errorf("Category: got %v, want %v", e.Category, want)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeEvents(t,
		Event{Timestamp: base, Category: CategoryGate, Strategy: "feature-config", Gate: &GateEvent{Allowed: false}},
		Event{Timestamp: base.Add(1 * time.Second), Category: CategoryGate, Strategy: "feature-config", Gate: &GateEvent{Allowed: true}},
		Event{Timestamp: base.Add(2 * time.Second), Category: CategoryRequest, Strategy: "feature-config", RequestID: "r1"},
		Event{Timestamp: base.Add(3 * time.Second), Category: CategoryGate, Strategy: "notification-stream", Gate: &GateEvent{Allowed: false}},
		Event{Timestamp: base.Add(4 * time.Second), Category: CategoryResponse, Strategy: "feature-config", RequestID: "r1"},
	)

	gate := CategoryGate
	start := base.Add(1 * time.Second)
	end := base.Add(4 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 5},
		{"Strategy", Filter{Strategy: "feature-config"}, 4},
		{"RequestID", Filter{RequestID: "r1"}, 2},
		{"Category", Filter{Category: &gate}, 3},
		{"DeniedOnly", Filter{DeniedOnly: true}, 2},
		{"DeniedForStrategy", Filter{DeniedOnly: true, Strategy: "notification-stream"}, 1},
		{"TimeRange", Filter{TimeStart: &start, TimeEnd: &end}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()

			events, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.rlog")); err == nil {
		t.Error("expected error for missing file")
	}
}

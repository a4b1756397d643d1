package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readAuditEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("malformed audit line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_Record(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	l, err := NewAuditLogger(logPath, 0)
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer l.Close()

	l.Record(Event{
		Type:      EventCycleCompleted,
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"cycle_id": "cycle_abc", "green_time": 47},
	})

	entries := readAuditEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].EventType != string(EventCycleCompleted) {
		t.Errorf("event_type = %q", entries[0].EventType)
	}
	if entries[0].CycleID != "cycle_abc" {
		t.Errorf("cycle_id = %q, want cycle_abc", entries[0].CycleID)
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	// Tiny max size forces rotation on the second entry.
	l, err := NewAuditLogger(logPath, 150)
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		l.Record(Event{
			Type:      EventCycleSkipped,
			Timestamp: time.Now().UTC(),
			Data:      map[string]interface{}{"reason": "capture_failed"},
		})
	}

	archived, err := filepath.Glob(filepath.Join(dir, archiveDir, "*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) == 0 {
		t.Error("expected at least one archived log after rotation")
	}
}

func TestAuditLogger_AttachTo(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	l, err := NewAuditLogger(logPath, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	bus := NewBus(10)
	defer bus.Close()
	detach := l.AttachTo(bus)
	defer detach()

	bus.Publish(EventCaptureFailover, map[string]interface{}{"source_id": 0})
	bus.Publish(EventCycleCompleted, map[string]interface{}{"cycle_id": "c9"})

	// Async delivery
	time.Sleep(100 * time.Millisecond)

	entries := readAuditEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

package audit

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewEvent_Defaults(t *testing.T) {
	e := NewEvent(1, "dcsm", "state_transition")

	if e.Slot != 1 {
		t.Errorf("Slot = %d, want 1", e.Slot)
	}
	if e.Component != "dcsm" {
		t.Errorf("Component = %q, want dcsm", e.Component)
	}
	if e.Operation != "state_transition" {
		t.Errorf("Operation = %q, want state_transition", e.Operation)
	}
	if !e.Success {
		t.Error("new event should default to Success=true")
	}
	if e.ID == "" {
		t.Error("ID should be non-empty")
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestEvent_WithTransport(t *testing.T) {
	e := NewEvent(2, "transportmgr", "handover").WithTransport("wlan")
	if e.Transport != "wlan" {
		t.Errorf("Transport = %q, want wlan", e.Transport)
	}
}

func TestEvent_WithTransition(t *testing.T) {
	e := NewEvent(1, "dcsm", "state_transition").WithTransition("activating", "active")
	if e.FromState != "activating" || e.ToState != "active" {
		t.Errorf("transition = %s->%s, want activating->active", e.FromState, e.ToState)
	}
}

func TestEvent_WithReason(t *testing.T) {
	e := NewEvent(0, "transportmgr", "handover").WithReason("qualified networks changed")
	if e.Reason != "qualified networks changed" {
		t.Errorf("Reason = %q", e.Reason)
	}
}

func TestEvent_WithError(t *testing.T) {
	e := NewEvent(1, "dcsm", "activate").WithError(errors.New("radio not available"))
	if e.Success {
		t.Error("WithError should mark event as failed")
	}
	if e.Error != "radio not available" {
		t.Errorf("Error = %q", e.Error)
	}
}

func TestEvent_WithError_Nil(t *testing.T) {
	e := NewEvent(1, "dcsm", "activate").WithError(nil)
	if e.Success {
		t.Error("WithError(nil) should still mark event as failed")
	}
	if e.Error != "" {
		t.Errorf("Error should remain empty for nil error, got %q", e.Error)
	}
}

func TestEvent_WithDuration(t *testing.T) {
	e := NewEvent(1, "dcsm", "activate").WithDuration(250 * time.Millisecond)
	if e.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", e.Duration)
	}
}

func newTestLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "datad-audit-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	path := filepath.Join(tmpDir, "events.log")
	logger, err := NewFileLogger(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func TestFileLogger_LogAndQuery(t *testing.T) {
	logger, _ := newTestLogger(t)

	events := []*Event{
		NewEvent(1, "dcsm", "state_transition").WithTransport("wwan").WithTransition("inactive", "activating"),
		NewEvent(2, "dcsm", "state_transition").WithTransport("wlan").WithTransition("inactive", "activating"),
		NewEvent(1, "transportmgr", "handover").WithError(errors.New("boom")),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
	}

	got, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query() returned %d events, want 3", len(got))
	}
}

func TestFileLogger_QueryBySlot(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "state_transition"))
	logger.Log(NewEvent(2, "dcsm", "state_transition"))

	got, err := logger.Query(Filter{Slot: 1})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query(Slot:1) returned %d events, want 1", len(got))
	}
	if got[0].Slot != 1 {
		t.Errorf("got event for slot %d, want 1", got[0].Slot)
	}
}

func TestFileLogger_QueryByComponent(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "state_transition"))
	logger.Log(NewEvent(1, "transportmgr", "handover"))

	got, err := logger.Query(Filter{Component: "transportmgr"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 || got[0].Component != "transportmgr" {
		t.Fatalf("Query(Component:transportmgr) = %+v", got)
	}
}

func TestFileLogger_QueryByTransport(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "state_transition").WithTransport("wwan"))
	logger.Log(NewEvent(1, "dcsm", "state_transition").WithTransport("wlan"))

	got, err := logger.Query(Filter{Transport: "wlan"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 || got[0].Transport != "wlan" {
		t.Fatalf("Query(Transport:wlan) = %+v", got)
	}
}

func TestFileLogger_QuerySuccessOnly(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "activate"))
	logger.Log(NewEvent(1, "dcsm", "activate").WithError(errors.New("fail")))

	got, err := logger.Query(Filter{SuccessOnly: true})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 || !got[0].Success {
		t.Fatalf("Query(SuccessOnly) = %+v", got)
	}
}

func TestFileLogger_QueryFailureOnly(t *testing.T) {
	logger, _ := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "activate"))
	logger.Log(NewEvent(1, "dcsm", "activate").WithError(errors.New("fail")))

	got, err := logger.Query(Filter{FailureOnly: true})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 || got[0].Success {
		t.Fatalf("Query(FailureOnly) = %+v", got)
	}
}

func TestFileLogger_QueryTimeRange(t *testing.T) {
	logger, _ := newTestLogger(t)

	past := NewEvent(1, "dcsm", "activate")
	past.Timestamp = time.Now().Add(-1 * time.Hour)
	logger.Log(past)

	now := NewEvent(1, "dcsm", "activate")
	logger.Log(now)

	got, err := logger.Query(Filter{StartTime: time.Now().Add(-10 * time.Minute)})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query(StartTime) returned %d events, want 1", len(got))
	}
}

func TestFileLogger_QueryLimitAndOffset(t *testing.T) {
	logger, _ := newTestLogger(t)

	for i := 0; i < 5; i++ {
		logger.Log(NewEvent(1, "dcsm", "activate"))
	}

	got, err := logger.Query(Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query(Limit:2,Offset:1) returned %d events, want 2", len(got))
	}
}

func TestFileLogger_QueryOffsetBeyondLength(t *testing.T) {
	logger, _ := newTestLogger(t)
	logger.Log(NewEvent(1, "dcsm", "activate"))

	got, err := logger.Query(Filter{Offset: 10})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Query(Offset:10) returned %d events, want 0", len(got))
	}
}

func TestFileLogger_QueryNonExistentFile(t *testing.T) {
	logger := &FileLogger{path: "/nonexistent/path/events.log"}
	got, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() on missing file should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query() on missing file should return empty, got %d", len(got))
	}
}

func TestFileLogger_QuerySkipsMalformedLines(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.Log(NewEvent(1, "dcsm", "activate"))
	logger.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	f.WriteString("not json\n")
	f.Close()

	logger2, err := NewFileLogger(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer logger2.Close()

	got, err := logger2.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() should skip malformed lines, got %d events", len(got))
	}
}

func TestDefaultLogger_NoneSet(t *testing.T) {
	defaultLogger = atomic.Value{}

	if err := Log(NewEvent(1, "dcsm", "activate")); err != nil {
		t.Errorf("Log() with no default logger should not error, got %v", err)
	}

	got, err := Query(Filter{})
	if err != nil {
		t.Errorf("Query() with no default logger should not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query() with no default logger should return empty, got %d", len(got))
	}
}

func TestDefaultLogger_SetAndUse(t *testing.T) {
	logger, _ := newTestLogger(t)
	SetDefaultLogger(logger)
	defer func() { defaultLogger = atomic.Value{} }()

	if err := Log(NewEvent(1, "dcsm", "activate")); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}

	got, err := Query(Filter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d events, want 1", len(got))
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/radiocore/datad/internal/apn"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.OperatingMode != ModeDefault {
		t.Fatalf("operating mode = %s, want default", c.OperatingMode)
	}
	if c.Priority(apn.Emergency) <= c.Priority(apn.Default) {
		t.Fatal("expected Emergency to outrank Default by default")
	}
	if c.Priority(apn.Default) <= c.Priority(apn.Mms) {
		t.Fatal("expected Default to outrank Mms by default")
	}
}

func TestLoad_PriorityOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("dispatch_priority:\n  mms: 999\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Priority(apn.Mms) != 999 {
		t.Fatalf("expected overridden priority 999, got %d", c.Priority(apn.Mms))
	}
}

func TestConfig_RetryDelaysDefault(t *testing.T) {
	c := &Config{}
	delays := c.RetryDelays()
	if len(delays) != 1 {
		t.Fatalf("expected single default delay, got %v", delays)
	}
}

//go:build integration

package store

import (
	"os"
	"testing"
	"time"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/internal/testutil"
)

func redisAddr(t *testing.T) string {
	addr := os.Getenv("DATAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DATAD_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestSessionStore_PutGetDelete(t *testing.T) {
	addr := redisAddr(t)
	defer testutil.FlushDB(t, addr, 0)

	s := NewSessionStore(addr)
	defer s.Close()

	ck := SessionCheckpoint{SessionID: 1, Slot: 0, Transport: radio.TransportWWAN, State: dcsm.Active, Cid: 7, Ifname: "rmnet0", ApnType: apn.Default}
	if err := s.Put(ck); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(0, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Ifname != "rmnet0" || got.Cid != 7 {
		t.Fatalf("unexpected checkpoint: %+v", got)
	}

	if err := s.Delete(0, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.Get(0, 1)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if got != nil {
		t.Fatal("expected checkpoint to be gone after delete")
	}
}

func TestSlotLock_AcquireReleaseMutualExclusion(t *testing.T) {
	addr := redisAddr(t)
	defer testutil.FlushDB(t, addr, 0)

	l := NewSlotLock(addr)
	defer l.Close()

	if err := l.Acquire(0, "primary", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Acquire(0, "backup", time.Minute); err != ErrSlotLocked {
		t.Fatalf("expected ErrSlotLocked, got %v", err)
	}
	if err := l.Release(0, "primary"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Acquire(0, "backup", time.Minute); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

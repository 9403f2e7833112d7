package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrSlotLocked is returned by SlotLock.Acquire when another holder
// already owns the lock.
var ErrSlotLocked = errors.New("store: slot already locked")

// acquireLockScript atomically acquires a slot lock iff it does not
// already exist.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseLockScript atomically releases a slot lock iff the caller is
// still the recorded holder.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// SlotLock is a Redis-backed distributed lock guarding one SIM slot's
// dispatch state machine, for deployments where more than one engine
// process could observe the same slot (a primary/backup modem-control
// pair).
type SlotLock struct {
	client *redis.Client
	ctx    context.Context
}

// NewSlotLock creates a SlotLock sharing a Redis address with SessionStore.
func NewSlotLock(addr string) *SlotLock {
	return &SlotLock{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: 0}),
		ctx:    context.Background(),
	}
}

func slotLockKey(slot int) string {
	return fmt.Sprintf("SLOT_LOCK_TABLE|%d", slot)
}

// Acquire takes the lock for slot under holder's identity for ttl.
// Returns ErrSlotLocked if another holder currently owns it.
func (l *SlotLock) Acquire(slot int, holder string, ttl time.Duration) error {
	key := slotLockKey(slot)
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireLockScript.Run(l.ctx, l.client, []string{key},
		holder, now, fmt.Sprintf("%d", int(ttl.Seconds()))).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for slot %d: %w", slot, err)
	}
	if result == 0 {
		return ErrSlotLocked
	}
	return nil
}

// Release gives up the lock for slot, iff holder is still the recorded owner.
func (l *SlotLock) Release(slot int, holder string) error {
	key := slotLockKey(slot)
	result, err := releaseLockScript.Run(l.ctx, l.client, []string{key}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for slot %d: %w", slot, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for slot %d", slot)
	case -1:
		return nil // already gone, treat as success
	}
	return nil
}

// Holder returns the current lock holder and acquisition time for slot.
// Returns ("", zero, nil) if unlocked.
func (l *SlotLock) Holder(slot int) (string, time.Time, error) {
	key := slotLockKey(slot)
	vals, err := l.client.HGetAll(l.ctx, key).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting lock holder for slot %d: %w", slot, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}
	acquired := time.Time{}
	if ts, ok := vals["acquired"]; ok {
		acquired, _ = time.Parse(time.RFC3339, ts)
	}
	return vals["holder"], acquired, nil
}

// Close releases the underlying Redis connection.
func (l *SlotLock) Close() error {
	return l.client.Close()
}

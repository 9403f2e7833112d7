// Package store checkpoints live session and apn-context state to
// Redis so the engine can reload its view of in-progress sessions
// after a restart, and coordinates a distributed lock per SIM slot for
// deployments that run a primary/backup modem-control pair.
package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
)

// SessionStore is a Redis-backed checkpoint of live sessions, keyed
// the same way the teacher keys its operational-state rows:
// "SESSION_TABLE|<slot>|<sessionID>" hashes.
type SessionStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewSessionStore creates a SessionStore against the given Redis address.
func NewSessionStore(addr string) *SessionStore {
	return &SessionStore{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: 0}),
		ctx:    context.Background(),
	}
}

func sessionKey(slot, sessionID int) string {
	return fmt.Sprintf("SESSION_TABLE|%d|%d", slot, sessionID)
}

// SessionCheckpoint is the durable snapshot of one Session's resumable state.
type SessionCheckpoint struct {
	SessionID int
	Slot      int
	Transport radio.Transport
	State     dcsm.State
	Cid       int
	Ifname    string
	ApnType   apn.Type
}

// Put writes (or overwrites) a session's checkpoint.
func (s *SessionStore) Put(c SessionCheckpoint) error {
	key := sessionKey(c.Slot, c.SessionID)
	fields := map[string]interface{}{
		"transport": int(c.Transport),
		"state":     int(c.State),
		"cid":       c.Cid,
		"ifname":    c.Ifname,
		"apn_type":  uint32(c.ApnType),
	}
	return s.client.HSet(s.ctx, key, fields).Err()
}

// Get reads a session's checkpoint. Returns (nil, nil) if absent.
func (s *SessionStore) Get(slot, sessionID int) (*SessionCheckpoint, error) {
	key := sessionKey(slot, sessionID)
	vals, err := s.client.HGetAll(s.ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	transport, _ := strconv.Atoi(vals["transport"])
	state, _ := strconv.Atoi(vals["state"])
	cid, _ := strconv.Atoi(vals["cid"])
	apnType, _ := strconv.ParseUint(vals["apn_type"], 10, 32)
	return &SessionCheckpoint{
		SessionID: sessionID,
		Slot:      slot,
		Transport: radio.Transport(transport),
		State:     dcsm.State(state),
		Cid:       cid,
		Ifname:    vals["ifname"],
		ApnType:   apn.Type(apnType),
	}, nil
}

// Delete removes a session's checkpoint, e.g. once it returns to Inactive.
func (s *SessionStore) Delete(slot, sessionID int) error {
	return s.client.Del(s.ctx, sessionKey(slot, sessionID)).Err()
}

// All returns every checkpointed session for a slot, using cursor-based
// SCAN rather than KEYS so it never blocks the server on a large keyspace.
func (s *SessionStore) All(slot int) ([]SessionCheckpoint, error) {
	pattern := fmt.Sprintf("SESSION_TABLE|%d|*", slot)
	keys, err := scanKeys(s.ctx, s.client, pattern, 100)
	if err != nil {
		return nil, err
	}

	out := make([]SessionCheckpoint, 0, len(keys))
	for _, key := range keys {
		vals, err := s.client.HGetAll(s.ctx, key).Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		var sessionID int
		fmt.Sscanf(key, fmt.Sprintf("SESSION_TABLE|%d|%%d", slot), &sessionID)
		transport, _ := strconv.Atoi(vals["transport"])
		state, _ := strconv.Atoi(vals["state"])
		cid, _ := strconv.Atoi(vals["cid"])
		apnType, _ := strconv.ParseUint(vals["apn_type"], 10, 32)
		out = append(out, SessionCheckpoint{
			SessionID: sessionID,
			Slot:      slot,
			Transport: radio.Transport(transport),
			State:     dcsm.State(state),
			Cid:       cid,
			Ifname:    vals["ifname"],
			ApnType:   apn.Type(apnType),
		})
	}
	return out, nil
}

// Close releases the underlying Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
)

// Event is one state-machine transition or handover decision, as
// broadcast to every subscribed websocket client.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TransitionPayload describes a single DC-SM state change.
type TransitionPayload struct {
	Slot      int    `json:"slot"`
	SessionID int    `json:"session_id"`
	Transport string `json:"transport"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// HandoverPayload describes the terminal outcome of a handover attempt.
type HandoverPayload struct {
	Slot      int  `json:"slot"`
	SourceID  int  `json:"source_id"`
	TargetID  int  `json:"target_id"`
	Succeeded bool `json:"succeeded"`
}

// Hub fans transition and handover events out to every connected
// websocket client. It implements dcctrl.Notifier.
type Hub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Event
}

// NewHub creates an empty Hub.
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// ServeWS upgrades the request to a websocket and streams events to it
// until the client disconnects or ctx-driven shutdown closes the conn.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	out := make(chan Event, 64)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()
	h.log.WithField("client", randomHex(6)).Debug("websocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain and discard anything the client sends; this feed is
	// one-directional. Reading also detects client-initiated close.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for ev := range out {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// broadcast pushes ev to every connected client's buffer, dropping it
// for any client whose buffer is full rather than blocking the caller.
func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, out := range h.clients {
		select {
		case out <- ev:
		default:
			h.log.WithField("client", conn.RemoteAddr().String()).Warn("websocket client backpressured, dropping event")
		}
	}
}

// OnTransition implements dcctrl.Notifier.
func (h *Hub) OnTransition(slot, sessionID int, transport radio.Transport, from, to dcsm.State) {
	h.broadcast(Event{
		Type:      "transition",
		Timestamp: time.Now(),
		Payload: TransitionPayload{
			Slot:      slot,
			SessionID: sessionID,
			Transport: transport.String(),
			From:      from.String(),
			To:        to.String(),
		},
	})
}

// OnHandoverOutcome implements dcctrl.Notifier.
func (h *Hub) OnHandoverOutcome(slot, sourceID, targetID int, succeeded bool) {
	h.broadcast(Event{
		Type:      "handover",
		Timestamp: time.Now(),
		Payload: HandoverPayload{
			Slot:      slot,
			SourceID:  sourceID,
			TargetID:  targetID,
			Succeeded: succeeded,
		},
	})
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radiocore/datad/internal/agent"
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcctrl"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/internal/registry"
)

type fakeSlotSource struct {
	ctrl        *dcctrl.Controller
	dataEnabled bool
}

func (f *fakeSlotSource) SlotController(slot int, transport radio.Transport) *dcctrl.Controller {
	if transport == radio.TransportWWAN {
		return f.ctrl
	}
	return nil
}

func (f *fakeSlotSource) DataEnabled() bool { return f.dataEnabled }

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	auth, err := NewTokenAuth()
	if err != nil {
		t.Fatalf("NewTokenAuth: %v", err)
	}
	tok, err := auth.Mint(time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	reqs := registry.New(func(apn.Type) int { return 0 })
	if _, err := reqs.AddRequest(registry.NetworkRequest{
		RequestID:    "req-1",
		Capabilities: []string{"INTERNET"},
		Slot:         0,
	}); err != nil {
		t.Fatalf("AddRequest: %v", err)
	}

	agents := agent.NewRegistry(func(int) agent.Consumer { return noopConsumer{} })
	ctrl := dcctrl.New(0, agents, nil, nil)
	retry := dcsm.NewRetryManager([]time.Duration{time.Second}, 0, 1)
	sess := dcsm.NewSession(radio.TransportWWAN, radio.NewFakeBinding(), ctrl, retry)
	ctrl.AddSession(sess)

	m := &metrics.Counters{}
	m.IncSetupRetry()

	srv := New("127.0.0.1:0", auth, reqs, m, &fakeSlotSource{ctrl: ctrl, dataEnabled: true})
	return srv, tok
}

type noopConsumer struct{}

func (noopConsumer) SendNetworkCapabilities(agent.NetworkCapabilities) {}
func (noopConsumer) SendLinkProperties(radio.LinkProperties)           {}
func (noopConsumer) SendNetworkScore(int)                             {}
func (noopConsumer) SendNetworkInfo(agent.NetworkInfo)                 {}
func (noopConsumer) OnSocketKeepaliveEvent(int, agent.KeepaliveEvent)  {}
func (noopConsumer) Unregister()                                      {}

func TestServer_RequestsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/slots/0/requests", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestServer_SlotRequests(t *testing.T) {
	srv, tok := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/slots/0/requests", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var out []RequestSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].RequestID != "req-1" {
		t.Fatalf("unexpected requests: %+v", out)
	}
}

func TestServer_SlotSessions(t *testing.T) {
	srv, tok := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/slots/0/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var out []SessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Transport != "wwan" {
		t.Fatalf("unexpected sessions: %+v", out)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, tok := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SetupRetries != 1 {
		t.Fatalf("SetupRetries = %d, want 1", snap.SetupRetries)
	}
}

func TestServer_Settings(t *testing.T) {
	srv, tok := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var snap SettingsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.DataEnabled {
		t.Fatalf("DataEnabled = false, want true")
	}
}

func TestServer_RunShutsDownOnContextCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/radiocore/datad/internal/api"
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/config"
	"github.com/radiocore/datad/internal/dcctrl"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/engine"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/internal/store"
	"github.com/radiocore/datad/internal/transportmgr"
	"github.com/radiocore/datad/pkg/audit"
	"github.com/radiocore/datad/pkg/settings"
	"github.com/radiocore/datad/pkg/util"
)

var (
	slotCount   int
	legacyMode  bool
	tokenTTL    time.Duration
	eventLogDir string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the control plane daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&slotCount, "slots", 1, "number of SIM slots to bring up")
	cmd.Flags().BoolVar(&legacyMode, "legacy", false, "disable WLAN/IWLAN offload, single-transport mode")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "debug API bearer token lifetime")
	cmd.Flags().StringVar(&eventLogDir, "event-log-dir", "", "override the audit event log directory (default: config-dir)")
	return cmd
}

const (
	objPathDataService       = dbus.ObjectPath("/org/radiocore/DataService")
	objPathPolicyOracle      = dbus.ObjectPath("/org/radiocore/PolicyOracle")
	objPathCapabilityManager = dbus.ObjectPath("/org/radiocore/CapabilityManager")
)

func run(ctx context.Context) error {
	log := util.WithComponent("datactld")

	cfg, err := config.Load(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if legacyMode {
		cfg.OperatingMode = config.ModeLegacy
	}

	profiles, err := apn.LoadDatabase(filepath.Join(configDir, "apns.db"))
	if err != nil {
		return fmt.Errorf("loading apn database: %w", err)
	}

	logDir := eventLogDir
	if logDir == "" {
		logDir = configDir
	}
	auditLog, err := audit.NewFileLogger(filepath.Join(logDir, "events.log"), audit.RotationConfig{
		MaxSizeMB:  settings.DefaultEventLogMaxSizeMB,
		MaxBackups: settings.DefaultEventLogMaxBackups,
	})
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	auth, err := api.NewTokenAuth()
	if err != nil {
		return fmt.Errorf("creating token authority: %w", err)
	}
	token, err := auth.Mint(tokenTTL)
	if err != nil {
		return fmt.Errorf("minting api token: %w", err)
	}
	log.WithField("expires_in", tokenTTL.String()).Info("minted debug api bearer token: " + token)

	if err := persistClientSettings(token); err != nil {
		log.WithError(err).Warn("failed to persist datactl settings file")
	}

	eng := engine.New(cfg)

	if cfg.SessionStoreAddr != "" {
		sessionStore := store.NewSessionStore(cfg.SessionStoreAddr)
		slotLock := store.NewSlotLock(cfg.SessionStoreAddr)
		defer sessionStore.Close()
		defer slotLock.Close()
		eng.SetStore(sessionStore, slotLock, lockHolderID())
	}

	apiServer := api.New(apiAddr, auth, eng.Requests(), eng.Metrics(), eng)
	eng.SetNotifier(&combinedNotifier{hub: apiServer.Hub(), audit: auditLog})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for slot := 0; slot < slotCount; slot++ {
		bindings, err := dialSlotBindings(cfg, slot)
		if err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
		if _, err := eng.AddSlot(runCtx, slot, profiles, bindings); err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
		log.WithField("slot", slot).Info("slot configured")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- apiServer.Run(runCtx) }()

	<-runCtx.Done()
	log.Info("shutdown signal received, draining slots")
	eng.Shutdown(5 * time.Second)

	select {
	case err := <-errCh:
		return err
	case <-time.After(6 * time.Second):
		return nil
	}
}

// dialSlotBindings binds to a slot's Data Service remote packages (one
// per transport) and its Policy Oracle over D-Bus, using the carrier
// override bus names when configured and the well-known per-slot
// default otherwise. Before each bind it runs the §4.1 permission
// policy through a shared capability manager binding for the slot.
func dialSlotBindings(cfg *config.Config, slot int) (engine.Bindings, error) {
	override, _ := cfg.Override(slot)

	capBus := override.CapabilityManagerBus
	if capBus == "" {
		capBus = fmt.Sprintf("org.radiocore.CapabilityManager.Slot%d", slot)
	}
	grantor, err := radio.NewDBusCapabilityGrantor(capBus, objPathCapabilityManager)
	if err != nil {
		return engine.Bindings{}, fmt.Errorf("dialing capability manager: %w", err)
	}

	wwanBus := override.DataServiceWWANBus
	if wwanBus == "" {
		wwanBus = fmt.Sprintf("org.radiocore.DataService.Wwan.Slot%d", slot)
	}
	wwanCandidates := override.DataServiceWWANCandidates
	if len(wwanCandidates) == 0 {
		wwanCandidates = []string{wwanBus}
	}
	wwan, err := radio.DialDBusBinding(wwanBus, objPathDataService, wwanCandidates, grantor, util.WithSlot(slot).WithField("transport", "wwan"))
	if err != nil {
		return engine.Bindings{}, fmt.Errorf("dialing wwan binding: %w", err)
	}

	b := engine.Bindings{WWAN: wwan}

	if cfg.OperatingMode != config.ModeLegacy {
		wlanBus := override.DataServiceWLANBus
		if wlanBus == "" {
			wlanBus = fmt.Sprintf("org.radiocore.DataService.Wlan.Slot%d", slot)
		}
		wlanCandidates := override.DataServiceWLANCandidates
		if len(wlanCandidates) == 0 {
			wlanCandidates = []string{wlanBus}
		}
		wlan, err := radio.DialDBusBinding(wlanBus, objPathDataService, wlanCandidates, grantor, util.WithSlot(slot).WithField("transport", "wlan"))
		if err != nil {
			return engine.Bindings{}, fmt.Errorf("dialing wlan binding: %w", err)
		}
		b.WLAN = wlan

		oracleBus := override.PolicyOracleBus
		if oracleBus == "" {
			oracleBus = fmt.Sprintf("org.radiocore.PolicyOracle.Slot%d", slot)
		}
		oracle, err := transportmgr.DialDBusOracle(oracleBus, objPathPolicyOracle, util.WithSlot(slot))
		if err != nil {
			return engine.Bindings{}, fmt.Errorf("dialing policy oracle: %w", err)
		}
		b.Oracle = oracle
	}

	return b, nil
}

// lockHolderID identifies this process to the distributed slot lock,
// for the primary/backup deployments SessionStoreAddr enables.
func lockHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "datactld"
	}
	return fmt.Sprintf("%s.%d", host, os.Getpid())
}

func persistClientSettings(token string) error {
	s, err := settings.Load()
	if err != nil {
		return err
	}
	s.APIAddr = apiAddr
	s.BearerToken = token
	s.ConfigDir = configDir
	return s.Save()
}

// combinedNotifier fans dcctrl's transition/handover feed out to both
// the live websocket hub and the durable audit log.
type combinedNotifier struct {
	hub   *api.Hub
	audit audit.Logger
}

func (n *combinedNotifier) OnTransition(slot, sessionID int, transport radio.Transport, from, to dcsm.State) {
	n.hub.OnTransition(slot, sessionID, transport, from, to)
	n.audit.Log(&audit.Event{
		Timestamp: time.Now(),
		Slot:      slot,
		Transport: transport.String(),
		Component: "dcsm",
		Operation: string(audit.EventTypeStateTransition),
		FromState: from.String(),
		ToState:   to.String(),
		Success:   true,
	})
}

func (n *combinedNotifier) OnHandoverOutcome(slot, sourceID, targetID int, succeeded bool) {
	n.hub.OnHandoverOutcome(slot, sourceID, targetID, succeeded)
	n.audit.Log(&audit.Event{
		Timestamp: time.Now(),
		Slot:      slot,
		Component: "dcctrl",
		Operation: string(audit.EventTypeHandover),
		Reason:    fmt.Sprintf("source=%d target=%d", sourceID, targetID),
		Success:   succeeded,
	})
}

var _ dcctrl.Notifier = (*combinedNotifier)(nil)

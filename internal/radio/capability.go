package radio

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// CapabilityGrantor grants and revokes the IPsec-tunnel capability a
// Data Service Binding's remote package needs to establish tunnels.
// Exactly one candidate package holds the capability at a time.
type CapabilityGrantor interface {
	GrantIPsecTunnel(ctx context.Context, candidate string) error
	RevokeIPsecTunnel(ctx context.Context, candidate string) error
}

// capabilityReconciler implements the §4.1 permission policy: grant the
// IPsec-tunnel capability to the currently bound candidate and revoke it
// from every other configured candidate, on every (re)bind attempt.
// Reconcile is idempotent — repeated calls with the same current
// candidate re-issue the same grant/revoke calls but never leave more
// than one candidate holding the capability.
type capabilityReconciler struct {
	grantor    CapabilityGrantor
	candidates []string
}

func newCapabilityReconciler(grantor CapabilityGrantor, candidates []string) *capabilityReconciler {
	return &capabilityReconciler{grantor: grantor, candidates: candidates}
}

func (r *capabilityReconciler) Reconcile(ctx context.Context, log *logrus.Entry, current string) {
	if r == nil || r.grantor == nil {
		return
	}
	if err := r.grantor.GrantIPsecTunnel(ctx, current); err != nil {
		log.WithError(err).Warn("granting ipsec-tunnel capability failed")
	}
	for _, candidate := range r.candidates {
		if candidate == current {
			continue
		}
		if err := r.grantor.RevokeIPsecTunnel(ctx, candidate); err != nil {
			log.WithError(err).Warn("revoking ipsec-tunnel capability failed")
		}
	}
}

const capabilityManagerIface = "org.radiocore.CapabilityManager"

// DBusCapabilityGrantor issues the grant/revoke calls to a well-known
// capability-manager remote package, the same bind-once-call-many shape
// as DBusBinding's own method calls.
type DBusCapabilityGrantor struct {
	conn    *dbus.Conn
	busName string
	objPath dbus.ObjectPath
}

// NewDBusCapabilityGrantor binds to busName on the system bus.
func NewDBusCapabilityGrantor(busName string, objPath dbus.ObjectPath) (*DBusCapabilityGrantor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &DBusCapabilityGrantor{conn: conn, busName: busName, objPath: objPath}, nil
}

func (g *DBusCapabilityGrantor) GrantIPsecTunnel(ctx context.Context, candidate string) error {
	obj := g.conn.Object(g.busName, g.objPath)
	call := obj.CallWithContext(ctx, capabilityManagerIface+".GrantIPsecTunnel", 0, candidate)
	return call.Err
}

func (g *DBusCapabilityGrantor) RevokeIPsecTunnel(ctx context.Context, candidate string) error {
	obj := g.conn.Object(g.busName, g.objPath)
	call := obj.CallWithContext(ctx, capabilityManagerIface+".RevokeIPsecTunnel", 0, candidate)
	return call.Err
}

func (g *DBusCapabilityGrantor) Close() error {
	return g.conn.Close()
}

package transportmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/radio"
)

// Oracle is the policy source a Manager consumes qualified-network
// verdicts from. Production deployments bind to the same well-known
// D-Bus shape as the data service binding itself; the remote package
// owns whatever signal inputs (Wi-Fi scan results, carrier config,
// user preference) feed its verdicts.
type Oracle interface {
	Subscribe(ctx context.Context, onChange func(QualifiedNetworks)) error
	Close() error
}

const (
	oracleIface          = "org.radiocore.PolicyOracle"
	qualifiedNetworksSig = oracleIface + ".QualifiedNetworksChanged"
)

// DBusOracle binds to a remote policy-oracle package over D-Bus,
// following the identical bind/rebind/package-override shape as
// radio.DBusBinding: one well-known bus name, NameOwnerChanged
// lifecycle tracking, and a single signal stream decoded into the
// domain type.
type DBusOracle struct {
	conn    *dbus.Conn
	busName string
	objPath dbus.ObjectPath
	log     *logrus.Entry

	mu        sync.Mutex
	connected bool
	closeOnce sync.Once
}

// DialDBusOracle connects to the system bus and binds to busName.
func DialDBusOracle(busName string, objPath dbus.ObjectPath, log *logrus.Entry) (*DBusOracle, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	o := &DBusOracle{conn: conn, busName: busName, objPath: objPath, log: log}

	rule := fmt.Sprintf(
		"type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='%s'",
		busName,
	)
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		conn.Close()
		return nil, call.Err
	}

	var hasOwner bool
	if call := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName); call.Err == nil {
		call.Store(&hasOwner)
	}
	o.connected = hasOwner

	return o, nil
}

// Subscribe watches for QualifiedNetworksChanged signals and invokes
// onChange for each one until ctx is cancelled.
func (o *DBusOracle) Subscribe(ctx context.Context, onChange func(QualifiedNetworks)) error {
	rule := fmt.Sprintf("type='signal',sender='%s',interface='%s',member='QualifiedNetworksChanged',path='%s'",
		o.busName, oracleIface, o.objPath)
	if call := o.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return call.Err
	}

	ch := make(chan *dbus.Signal, 16)
	o.conn.Signal(ch)

	go func() {
		for {
			select {
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if sig.Name != qualifiedNetworksSig {
					continue
				}
				qn, err := decodeQualifiedNetworks(sig.Body)
				if err != nil {
					o.log.WithError(err).Warn("decoding qualified networks signal")
					continue
				}
				onChange(qn)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (o *DBusOracle) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.conn.Close()
	})
	return err
}

func decodeQualifiedNetworks(body []any) (QualifiedNetworks, error) {
	if len(body) != 2 {
		return QualifiedNetworks{}, fmt.Errorf("expected 2-field signal body, got %d", len(body))
	}
	apnType, ok := body[0].(uint32)
	if !ok {
		return QualifiedNetworks{}, fmt.Errorf("unexpected apn_type field type %T", body[0])
	}
	raw, ok := body[1].([]int32)
	if !ok {
		return QualifiedNetworks{}, fmt.Errorf("unexpected access_networks field type %T", body[1])
	}
	nets := make([]radio.AccessNetwork, 0, len(raw))
	for _, v := range raw {
		nets = append(nets, radio.AccessNetwork(v))
	}
	return QualifiedNetworks{ApnType: apn.Type(apnType), OrderedPreferredAccess: nets}, nil
}

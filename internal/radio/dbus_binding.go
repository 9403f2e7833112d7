package radio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// Well-known D-Bus interface exposed by a transport's Data Service
// Binding remote package. The engine never speaks the modem's own
// wire protocol; that translation is the remote package's job.
const (
	dataServiceIface  = "org.radiocore.DataService"
	dataServiceMethod = dataServiceIface + ".%s"
	listChangedSignal = dataServiceIface + ".DataCallListChanged"
)

// DBusBinding is the production DataServiceBinding backed by a D-Bus
// method-call/signal remote package. One instance binds to exactly
// one well-known bus name, matching the one-binding-per-transport
// invariant in §4.1.
type DBusBinding struct {
	conn    *dbus.Conn
	busName string
	objPath dbus.ObjectPath
	log     *logrus.Entry

	capability *capabilityReconciler

	mu        sync.Mutex
	connected bool

	events    chan Event
	nextToken uint64

	closeOnce sync.Once
}

// DialDBusBinding connects to the system bus and binds to busName, the
// well-known name a transport's remote data-service package registers
// under (e.g. "org.radiocore.DataService.Wwan"). candidates lists every
// well-known name that could provide this transport's binding (busName
// is expected to be among them); grantor may be nil, in which case the
// permission policy is skipped.
func DialDBusBinding(busName string, objPath dbus.ObjectPath, candidates []string, grantor CapabilityGrantor, log *logrus.Entry) (*DBusBinding, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	b := &DBusBinding{
		conn:       conn,
		busName:    busName,
		objPath:    objPath,
		log:        log,
		capability: newCapabilityReconciler(grantor, candidates),
		events:     make(chan Event, 64),
	}

	// Permission policy (§4.1): grant/revoke must happen before bind.
	b.capability.Reconcile(context.Background(), log, busName)

	if err := b.subscribeLifecycle(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s lifecycle: %w", busName, err)
	}

	b.mu.Lock()
	b.connected = b.nameHasOwner()
	b.mu.Unlock()

	if err := b.subscribeListChanged(); err != nil {
		b.log.Warnf("subscribing to data_call_list_changed: %v", err)
	}

	return b, nil
}

// subscribeLifecycle watches NameOwnerChanged for our remote package's
// well-known name and drives the binding_changed edge specified in §4.1.
func (b *DBusBinding) subscribeLifecycle() error {
	rule := fmt.Sprintf(
		"type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='%s'",
		b.busName,
	)
	if call := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return call.Err
	}

	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)

	go func() {
		for sig := range ch {
			if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			_, oldOwnerOK := sig.Body[1].(string)
			newOwner, newOwnerOK := sig.Body[2].(string)
			if name != b.busName || !oldOwnerOK || !newOwnerOK {
				continue
			}

			bound := newOwner != ""
			b.mu.Lock()
			changed := b.connected != bound
			b.connected = bound
			b.mu.Unlock()

			if changed {
				b.log.WithField("bound", bound).Info("data service binding changed")
				if bound {
					// Rebind: re-run the permission policy before
					// resuming use of the remote package.
					b.capability.Reconcile(context.Background(), b.log, b.busName)
				}
				b.emit(Event{Kind: EventBindingChanged, Bound: bound})
			}
		}
	}()

	return nil
}

func (b *DBusBinding) subscribeListChanged() error {
	rule := fmt.Sprintf("type='signal',sender='%s',interface='%s',member='DataCallListChanged',path='%s'",
		b.busName, dataServiceIface, b.objPath)
	if call := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return call.Err
	}

	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)

	go func() {
		for sig := range ch {
			if sig.Name != listChangedSignal {
				continue
			}
			list := decodeCallList(sig.Body)
			b.emit(Event{Kind: EventListChanged, List: list})
		}
	}()

	return nil
}

func (b *DBusBinding) nameHasOwner() bool {
	var hasOwner bool
	call := b.conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, b.busName)
	if call.Err != nil {
		return false
	}
	if err := call.Store(&hasOwner); err != nil {
		return false
	}
	return hasOwner
}

func (b *DBusBinding) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.log.Warn("data service binding event channel full, dropping event")
	}
}

func (b *DBusBinding) remoteObject() dbus.BusObject {
	return b.conn.Object(b.busName, b.objPath)
}

func (b *DBusBinding) newToken() Token {
	return Token(atomic.AddUint64(&b.nextToken, 1))
}

func (b *DBusBinding) call(ctx context.Context, method string, args ...any) (Token, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return 0, ErrBindingDisconnected
	}

	tok := b.newToken()
	go b.invoke(ctx, tok, method, args...)
	return tok, nil
}

// invoke makes the blocking D-Bus call off the caller's goroutine and
// delivers exactly one EventDataCallResult for tok, regardless of outcome.
func (b *DBusBinding) invoke(ctx context.Context, tok Token, method string, args ...any) {
	obj := b.remoteObject()
	var raw callResult

	call := obj.CallWithContext(ctx, fmt.Sprintf(dataServiceMethod, method), 0, args...)
	if call.Err != nil {
		b.log.WithError(call.Err).Warnf("data service call %s failed", method)
		b.emit(Event{Kind: EventDataCallResult, Token: tok, Response: DataCallResponse{
			Status:           ErrorRadioNotAvailable,
			SuggestedRetryMs: NoSuggestedRetry,
		}})
		return
	}
	if err := call.Store(&raw); err != nil {
		b.log.WithError(err).Warnf("decoding data service response for %s", method)
		b.emit(Event{Kind: EventDataCallResult, Token: tok, Response: DataCallResponse{
			Status:           ErrorInvalidArg,
			SuggestedRetryMs: NeverRetry,
		}})
		return
	}

	b.emit(Event{Kind: EventDataCallResult, Token: tok, Response: raw.toResponse()})
}

// callResult mirrors the D-Bus struct signature returned by the remote
// package's methods; field order matches the §6 wire layout.
type callResult struct {
	Status           int32
	SuggestedRetryMs int64
	Cid              int32
	LinkStatus       int32
	Type             string
	Ifname           string
	Addresses        []string
	Dnses            []string
	Gateways         []string
	Pcscf            []string
	Mtu              int32
}

func (r callResult) toResponse() DataCallResponse {
	return DataCallResponse{
		Status:           ResultCode(r.Status),
		SuggestedRetryMs: r.SuggestedRetryMs,
		Cid:              int(r.Cid),
		LinkStatus:       LinkStatus(r.LinkStatus),
		Type:             r.Type,
		Ifname:           r.Ifname,
		Addresses:        r.Addresses,
		Dnses:            r.Dnses,
		Gateways:         r.Gateways,
		Pcscf:            r.Pcscf,
		Mtu:              int(r.Mtu),
	}
}

func decodeCallList(body []any) []DataCallResponse {
	if len(body) != 1 {
		return nil
	}
	raws, ok := body[0].([]callResult)
	if !ok {
		return nil
	}
	out := make([]DataCallResponse, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.toResponse())
	}
	return out
}

func (b *DBusBinding) SetupDataCall(ctx context.Context, req SetupRequest) (Token, error) {
	var linkProps any
	if req.LinkProperties != nil {
		linkProps = *req.LinkProperties
	}
	return b.call(ctx, "SetupDataCall", int32(req.AccessNetwork), req.ApnName, req.ApnType,
		req.ProtocolType, int32(req.Reason), linkProps)
}

func (b *DBusBinding) DeactivateDataCall(ctx context.Context, req DeactivateRequest) (Token, error) {
	return b.call(ctx, "DeactivateDataCall", int32(req.Cid), int32(req.Reason))
}

func (b *DBusBinding) SetInitialAttachApn(ctx context.Context, apnName, protocolType string) (Token, error) {
	return b.call(ctx, "SetInitialAttachApn", apnName, protocolType)
}

func (b *DBusBinding) SetDataProfile(ctx context.Context, profiles []DataProfile) (Token, error) {
	return b.call(ctx, "SetDataProfile", profiles)
}

func (b *DBusBinding) GetDataCallList(ctx context.Context) (Token, error) {
	return b.call(ctx, "GetDataCallList")
}

func (b *DBusBinding) SetDataAllowed(ctx context.Context, allowed bool) (Token, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return 0, ErrBindingDisconnected
	}
	tok := b.newToken()
	go b.invokeAllowed(ctx, tok, allowed)
	return tok, nil
}

func (b *DBusBinding) invokeAllowed(ctx context.Context, tok Token, allowed bool) {
	obj := b.remoteObject()
	var statusRaw int32

	call := obj.CallWithContext(ctx, fmt.Sprintf(dataServiceMethod, "SetDataAllowed"), 0, allowed)
	if call.Err != nil {
		b.log.WithError(call.Err).Warn("set_data_allowed call failed")
		b.emit(Event{Kind: EventDataAllowedResult, Token: tok, Allowed: allowed, Status: ErrorRadioNotAvailable})
		return
	}
	if err := call.Store(&statusRaw); err != nil {
		b.log.WithError(err).Warn("decoding set_data_allowed response")
		b.emit(Event{Kind: EventDataAllowedResult, Token: tok, Allowed: allowed, Status: ErrorInvalidArg})
		return
	}

	b.emit(Event{Kind: EventDataAllowedResult, Token: tok, Allowed: allowed, Status: ResultCode(statusRaw)})
}

func (b *DBusBinding) Events() <-chan Event {
	return b.events
}

func (b *DBusBinding) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *DBusBinding) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.conn.Close()
		close(b.events)
	})
	return err
}

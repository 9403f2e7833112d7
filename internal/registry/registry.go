package registry

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/pkg/util"
)

// PriorityFunc resolves the static, carrier-config-derived priority
// for an apn type.
type PriorityFunc func(apn.Type) int

// Starter creates the actual data connection session for a slot/apn
// context the first time a request on it gets a ref-count, since
// dispatch attaching a slot and a connection existing for one of its
// apn contexts are two different things: dispatch only gates
// set_data_allowed, not which transport serves which apn type.
type Starter interface {
	StartSession(slot int, ctx *apn.Context)
}

// slotBinding bundles the per-slot collaborators the registry needs to
// drive dispatch decisions and ref-count execution.
type slotBinding struct {
	dispatch *DispatchSM
	contexts *apn.Registry
}

// Registry holds every outstanding NetworkRequest, keyed by id, plus a
// priority index derived from static per-apn-type configuration.
type Registry struct {
	mu       sync.Mutex
	log      *logrus.Entry
	priority PriorityFunc
	requests map[string]*RequestInfo
	slots    map[int]*slotBinding
	starter  Starter
}

// SetStarter wires the session-creation callback. Optional; without
// one, executeOne only maintains the ref-count and never starts a
// session (useful in tests that drive apn.Context directly).
func (r *Registry) SetStarter(s Starter) { r.starter = s }

// New creates a Registry. priority supplies the static dispatch
// priority table (see internal/config.Config.Priority).
func New(priority PriorityFunc) *Registry {
	return &Registry{
		log:      util.WithComponent("registry"),
		priority: priority,
		requests: make(map[string]*RequestInfo),
		slots:    make(map[int]*slotBinding),
	}
}

// BindSlot associates a slot's DispatchSM and ApnContext registry so
// ProcessRequests and ExecuteRequest can act on that slot.
func (r *Registry) BindSlot(slot int, dispatch *DispatchSM, contexts *apn.Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = &slotBinding{dispatch: dispatch, contexts: contexts}
}

// AddRequest validates and registers a new NetworkRequest.
func (r *Registry) AddRequest(req NetworkRequest) (*RequestInfo, error) {
	apnType, err := resolveApnType(req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info := &RequestInfo{Request: req, ApnType: apnType, Priority: r.priority(apnType)}
	info.logf("added, priority=%d", info.Priority)
	r.requests[req.RequestID] = info
	return info, nil
}

// RemoveRequest releases (if executed) and forgets a request.
func (r *Registry) RemoveRequest(id string) {
	r.mu.Lock()
	info, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.requests, id)
	binding := r.slots[info.Request.Slot]
	r.mu.Unlock()

	if info.Executed && binding != nil {
		r.releaseOne(info, binding)
	}
}

// Get returns the RequestInfo for id, if present.
func (r *Registry) Get(id string) (*RequestInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.requests[id]
	return info, ok
}

// ForSlot returns every outstanding request belonging to slot, sorted
// by priority then request id, for inspection surfaces.
func (r *Registry) ForSlot(slot int) []*RequestInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var infos []*RequestInfo
	for _, info := range r.requests {
		if info.Request.Slot == slot {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority > infos[j].Priority
		}
		return infos[i].Request.RequestID < infos[j].Request.RequestID
	})
	return infos
}

// executeOne sets a request executed and acquires the ref-count on the
// ApnContext matching its apn type, per the §4.5 ref-count discipline.
func (r *Registry) executeOne(info *RequestInfo, binding *slotBinding) {
	if info.Executed {
		return
	}
	ctx := binding.contexts.Get(info.ApnType)
	if ctx == nil {
		info.logf("no apn context for type %s, cannot execute", info.ApnType)
		return
	}
	firstRef := ctx.Acquire()
	info.Executed = true
	info.logf("executed (first_ref=%v)", firstRef)
	if firstRef && r.starter != nil {
		r.starter.StartSession(info.Request.Slot, ctx)
	}
}

// releaseOne is the inverse of executeOne.
func (r *Registry) releaseOne(info *RequestInfo, binding *slotBinding) {
	if !info.Executed {
		return
	}
	ctx := binding.contexts.Get(info.ApnType)
	if ctx != nil {
		lastRef := ctx.Release()
		info.logf("released (last_ref=%v)", lastRef)
	}
	info.Executed = false
}

// ProcessRequests runs the top-priority selection algorithm: the slot
// hosting the single highest-priority outstanding request is told to
// attach (if no slot is Attached); a non-winning Attached slot is told
// to disconnect all; a winning slot already Attached has all of its
// non-executed requests executed.
func (r *Registry) ProcessRequests() {
	r.mu.Lock()
	top, ok := r.topRequest()
	if !ok {
		r.mu.Unlock()
		return
	}
	winnerSlot := top.Request.Slot
	slots := make(map[int]*slotBinding, len(r.slots))
	for s, b := range r.slots {
		slots[s] = b
	}
	reqsBySlot := make(map[int][]*RequestInfo)
	for _, info := range r.requests {
		reqsBySlot[info.Request.Slot] = append(reqsBySlot[info.Request.Slot], info)
	}
	r.mu.Unlock()

	winnerBinding, haveWinner := slots[winnerSlot]
	anyAttached := false
	for slot, b := range slots {
		if b.dispatch.State() == Attached {
			anyAttached = true
			if slot != winnerSlot {
				b.dispatch.Post(DisconnectAll{})
			}
		}
	}

	if !haveWinner {
		return
	}

	if !anyAttached {
		winnerBinding.dispatch.Post(Connect{})
		return
	}

	if winnerBinding.dispatch.State() == Attached {
		for _, info := range reqsBySlot[winnerSlot] {
			r.mu.Lock()
			r.executeOne(info, winnerBinding)
			r.mu.Unlock()
		}
	}
}

// OnIdle implements Hook: re-run top-priority selection so any request
// still outstanding (e.g. one that arrived while this slot was
// detaching) gets a chance to drive a fresh attach.
func (r *Registry) OnIdle(slot int) {
	r.ProcessRequests()
}

// OnAttached implements Hook: execute every queued, non-executed
// request belonging to slot.
func (r *Registry) OnAttached(slot int) {
	r.mu.Lock()
	binding, ok := r.slots[slot]
	if !ok {
		r.mu.Unlock()
		return
	}
	var infos []*RequestInfo
	for _, info := range r.requests {
		if info.Request.Slot == slot {
			infos = append(infos, info)
		}
	}
	r.mu.Unlock()

	for _, info := range infos {
		r.mu.Lock()
		r.executeOne(info, binding)
		r.mu.Unlock()
	}
}

// topRequest returns the single highest-priority outstanding request,
// breaking ties by request id for determinism. Caller must hold r.mu.
func (r *Registry) topRequest() (*RequestInfo, bool) {
	if len(r.requests) == 0 {
		return nil, false
	}
	infos := make([]*RequestInfo, 0, len(r.requests))
	for _, info := range r.requests {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority > infos[j].Priority
		}
		return infos[i].Request.RequestID < infos[j].Request.RequestID
	})
	return infos[0], true
}

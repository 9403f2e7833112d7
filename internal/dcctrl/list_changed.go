package dcctrl

import (
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
)

// OnListChanged implements the §4.3 demultiplexer: given the
// authoritative cid list from a data_call_list_changed batch, it
// reconciles every known active session and classifies newly-appeared
// inactive entries.
func (c *Controller) OnListChanged(list []radio.DataCallResponse) {
	newByCid := make(map[int]radio.DataCallResponse, len(list))
	for _, r := range list {
		newByCid[r.Cid] = r
	}

	c.mu.RLock()
	activeByCid := make(map[int]*dcsm.Session, len(c.activeByCid))
	for cid, s := range c.activeByCid {
		activeByCid[cid] = s
	}
	c.mu.RUnlock()

	for cid, resp := range newByCid {
		session, known := activeByCid[cid]
		if !known {
			// setup not yet acknowledged by this controller; ignore.
			continue
		}
		c.reconcile(session, resp)
	}

	for cid, session := range activeByCid {
		if _, stillPresent := newByCid[cid]; !stillPresent {
			session.Post(dcsm.LostConnection{Classification: c.classifyLoss(session)})
		}
	}
}

// reconcile applies the §4.2 link-property reconciliation rules for an
// active session given its latest DataCallResponse.
func (c *Controller) reconcile(session *dcsm.Session, resp radio.DataCallResponse) {
	oldProps := session.LinkProperties()
	newProps := radio.FromResponse(resp)

	if oldProps.Equal(newProps) {
		return
	}

	if oldProps.Ifname != newProps.Ifname {
		session.Post(dcsm.LostConnection{Classification: dcsm.FailurePermanent})
		return
	}

	if oldProps.FamilyChanged(newProps) {
		session.Post(dcsm.LostConnection{Classification: dcsm.FailurePermanent})
		return
	}

	session.Post(dcsm.LinkPropsChanged{New: newProps, Status: resp.LinkStatus})
}

// classifyLoss determines the failure classification for a session
// whose cid disappeared from the list, per the §4.3/§7 taxonomy. The
// default classification without additional radio-state input is
// transient, matching the "retry unless told otherwise" propagation
// policy; callers with radio-state awareness (e.g. a SIM-absent signal)
// should call ClassifyAndReport directly instead.
func (c *Controller) classifyLoss(session *dcsm.Session) dcsm.FailureClass {
	return dcsm.FailureTransient
}

// ClassifyAndReport lets an external signal (e.g. the radio reporting
// SIM removal, or a modem crash) override the default transient
// classification for a lost cid, driving a radio restart request when
// warranted.
func (c *Controller) ClassifyAndReport(session *dcsm.Session, class dcsm.FailureClass) {
	if class == dcsm.FailureRadioRestart && c.restarter != nil {
		c.restarter.RestartRadio(c.slot)
	}
	session.Post(dcsm.LostConnection{Classification: class})
}

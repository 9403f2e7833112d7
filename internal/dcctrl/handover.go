package dcctrl

import (
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
)

// StartHandover drives steps 1-2 of the handover protocol: the
// target session (already created Inactive, on the sibling transport)
// is told to Connect with reason=Handover, carrying the source's
// current link properties for continuity. Step 3 (ownership transfer)
// and step 4 (source teardown) happen asynchronously as the target's
// state transitions are observed through StateChanged.
func (c *Controller) StartHandover(source, target *dcsm.Session, profile apn.Profile, apnCtx *apn.Context, fallback bool) {
	c.mu.Lock()
	c.pendingHandovers[target.ID()] = &pendingHandover{sourceID: source.ID(), fallback: fallback}
	c.mu.Unlock()

	link := source.LinkProperties()
	target.Post(dcsm.Connect{
		Profile:      profile,
		Context:      apnCtx,
		Reason:       radio.ReasonHandover,
		ExistingLink: &link,
	})
}

// driveHandover reacts to a state transition on sessionID, completing
// steps 3-5 of the handover protocol when sessionID is a known
// handover target.
func (c *Controller) driveHandover(sessionID int, to dcsm.State) {
	if to != dcsm.Active && to != dcsm.Inactive {
		return // not yet a terminal outcome for the handover target
	}

	c.mu.Lock()
	ph, ok := c.pendingHandovers[sessionID]
	if ok {
		delete(c.pendingHandovers, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	target := c.session(sessionID)
	source := c.session(ph.sourceID)
	if target == nil || source == nil {
		return
	}

	switch to {
	case dcsm.Active:
		// Step 3: transfer Network Agent ownership from source to target.
		source.TransferAgentTo(target)
		// Step 4: source deactivates with reason=Handover.
		source.Post(dcsm.Disconnect{Reason: radio.ReasonHandover})
		c.metrics.IncHandoverSucceeded()
		if c.notifier != nil {
			c.notifier.OnHandoverOutcome(c.slot, source.ID(), target.ID(), true)
		}
	case dcsm.Inactive:
		// Step 5: target failed at setup.
		if !ph.fallback {
			source.Post(dcsm.Disconnect{Reason: radio.ReasonHandover})
		} else {
			// fallback=true: source remains attached, no action.
			c.metrics.IncHandoverFallback()
		}
		if c.notifier != nil {
			c.notifier.OnHandoverOutcome(c.slot, source.ID(), target.ID(), false)
		}
	}
}

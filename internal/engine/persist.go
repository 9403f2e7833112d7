package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/store"
)

// storePersister adapts a store.SessionStore to dcctrl.Persister,
// letting the engine reload its view of in-progress sessions after a
// restart instead of re-querying the modem.
type storePersister struct {
	store *store.SessionStore
	log   *logrus.Entry
}

func (p *storePersister) Checkpoint(slot int, s *dcsm.Session) {
	err := p.store.Put(store.SessionCheckpoint{
		SessionID: s.ID(),
		Slot:      slot,
		Transport: s.Transport(),
		State:     s.State(),
		Cid:       s.Cid(),
		Ifname:    s.LinkProperties().Ifname,
		ApnType:   s.ApnType(),
	})
	if err != nil {
		p.log.WithError(err).Warn("checkpointing session failed")
	}
}

func (p *storePersister) Forget(slot, sessionID int) {
	if err := p.store.Delete(slot, sessionID); err != nil {
		p.log.WithError(err).Warn("deleting session checkpoint failed")
	}
}

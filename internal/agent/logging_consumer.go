package agent

import (
	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/radio"
)

// LoggingConsumer is a Consumer that records published network state
// to the slot's log instead of forwarding it over a connectivity IPC
// surface. It stands in until a real connectivity binding is wired,
// and is what Engine uses by default.
type LoggingConsumer struct {
	sessionID int
	log       *logrus.Entry
}

// NewLoggingConsumer builds a LoggingConsumer for sessionID.
func NewLoggingConsumer(sessionID int, log *logrus.Entry) *LoggingConsumer {
	return &LoggingConsumer{sessionID: sessionID, log: log.WithField("session", sessionID)}
}

func (c *LoggingConsumer) SendNetworkCapabilities(caps NetworkCapabilities) {
	c.log.WithFields(logrus.Fields{
		"capabilities": caps.Capabilities,
		"transport":    caps.Transport.String(),
		"not_metered":  caps.NotMetered,
		"not_roaming":  caps.NotRoaming,
	}).Info("network capabilities")
}

func (c *LoggingConsumer) SendLinkProperties(props radio.LinkProperties) {
	c.log.WithFields(logrus.Fields{
		"ifname": props.Ifname,
		"mtu":    props.Mtu,
	}).Info("link properties")
}

func (c *LoggingConsumer) SendNetworkScore(score int) {
	c.log.WithField("score", score).Debug("network score")
}

func (c *LoggingConsumer) SendNetworkInfo(info NetworkInfo) {
	c.log.WithFields(logrus.Fields{
		"type":    info.TypeName,
		"subtype": info.Subtype,
		"roaming": info.Roaming,
	}).Info("network info")
}

func (c *LoggingConsumer) OnSocketKeepaliveEvent(handle int, event KeepaliveEvent) {
	c.log.WithField("handle", handle).Info("keepalive event")
}

func (c *LoggingConsumer) Unregister() {
	c.log.Info("agent unregistered")
}

// Package config loads the engine's YAML configuration: operating
// mode, per-subscription carrier overrides, retry delay sequences and
// the dispatch priority table.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radiocore/datad/internal/apn"
)

// OperatingMode selects the transport manager's behavior.
type OperatingMode string

const (
	ModeDefault    OperatingMode = "default"
	ModeLegacy     OperatingMode = "legacy"
	ModeAPAssisted OperatingMode = "ap-assisted"
)

// CarrierOverride carries the well-known D-Bus bus names a
// subscription's carrier config selects for its remote packages.
type CarrierOverride struct {
	DataServiceWWANBus string `yaml:"data_service_wwan_bus"`
	DataServiceWLANBus string `yaml:"data_service_wlan_bus"`
	PolicyOracleBus    string `yaml:"policy_oracle_bus"`

	// CapabilityManagerBus is the remote package the permission policy
	// (§4.1) grants/revokes the IPsec-tunnel capability through.
	CapabilityManagerBus string `yaml:"capability_manager_bus"`

	// DataServiceWWANCandidates / DataServiceWLANCandidates list every
	// well-known name that could provide that transport's binding on
	// this device (the currently bound name should be among them); the
	// permission policy grants the bound one and revokes the rest.
	DataServiceWWANCandidates []string `yaml:"data_service_wwan_candidates"`
	DataServiceWLANCandidates []string `yaml:"data_service_wlan_candidates"`
}

// Config is the engine's top-level configuration document.
type Config struct {
	OperatingMode     OperatingMode           `yaml:"operating_mode"`
	CarrierOverrides  map[int]CarrierOverride `yaml:"carrier_overrides"`
	RetryDelaysMillis []int64                 `yaml:"retry_delays_ms"`
	RetryRandWindowMS int64                   `yaml:"retry_rand_window_ms"`
	MaxRetries        int                     `yaml:"max_retries"`
	DispatchPriority  map[string]int          `yaml:"dispatch_priority"`

	// SessionStoreAddr is the Redis address backing internal/store's
	// session checkpoint and slot lock. Empty disables both: the
	// engine runs with no restart-resume and no distributed slot lock.
	SessionStoreAddr string `yaml:"session_store_addr"`
}

// defaultPriority is the documented default dispatch priority table,
// highest first: Emergency > Ia > Default > Ims > Mms > Supl > Dun >
// Hipri > Fota > Cbs.
var defaultPriority = map[apn.Type]int{
	apn.Emergency: 100,
	apn.Ia:        90,
	apn.Default:   80,
	apn.Ims:       70,
	apn.Mms:       60,
	apn.Supl:      50,
	apn.Dun:       40,
	apn.Hipri:     30,
	apn.Fota:      20,
	apn.Cbs:       10,
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if c.OperatingMode == "" {
		c.OperatingMode = ModeDefault
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = -1
	}
	return &c, nil
}

// RetryDelays converts the configured millisecond delay sequence into
// time.Duration values, falling back to a single 5s delay if unset.
func (c *Config) RetryDelays() []time.Duration {
	if len(c.RetryDelaysMillis) == 0 {
		return []time.Duration{5 * time.Second}
	}
	out := make([]time.Duration, len(c.RetryDelaysMillis))
	for i, ms := range c.RetryDelaysMillis {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// RetryRandWindow returns the jitter window as a time.Duration.
func (c *Config) RetryRandWindow() time.Duration {
	return time.Duration(c.RetryRandWindowMS) * time.Millisecond
}

// Priority returns the dispatch priority for an apn type, preferring
// the configured override and falling back to the documented default.
func (c *Config) Priority(t apn.Type) int {
	if c.DispatchPriority != nil {
		if p, ok := c.DispatchPriority[t.String()]; ok {
			return p
		}
	}
	if p, ok := defaultPriority[t]; ok {
		return p
	}
	return 0
}

// Override returns the carrier override for a subscription id, if any.
func (c *Config) Override(subID int) (CarrierOverride, bool) {
	o, ok := c.CarrierOverrides[subID]
	return o, ok
}

package clusterstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbias/clusterstate/storage"
)

// HostState tracks where a host is in its registration lifecycle.
type HostState string

const (
	// HostStateInit is the state of a freshly registered host that has not
	// reported anything yet.
	HostStateInit HostState = "init"
	// HostStateHealthy means the host's agent is heartbeating normally.
	HostStateHealthy HostState = "healthy"
	// HostStateUnhealthy means the host reported a failing health check.
	HostStateUnhealthy HostState = "unhealthy"
	// HostStateHeartbeatLost means the host's agent stopped reporting.
	HostStateHeartbeatLost HostState = "heartbeat_lost"
)

// HealthStatus is a coarse host health classification.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HostHealth pairs a health classification with a human-readable detail.
type HostHealth struct {
	Status HealthStatus
	Detail string
}

// DiskInfo describes one mounted disk reported by a host's agent.
type DiskInfo struct {
	MountPoint string
	Device     string
	TotalBytes uint64
	FreeBytes  uint64
}

// AgentInfo identifies the management agent running on a host.
type AgentInfo struct {
	ID      string
	Version string
}

// Host is a named machine record tracked by the registry. A host created
// by Registry.AddHost starts transient (no backing row); it is persisted
// on first save, which the registry performs before mapping the host into
// a cluster. All methods are safe for concurrent use.
type Host struct {
	name string

	mu            sync.RWMutex
	osType        string
	state         HostState
	health        HostHealth
	attributes    map[string]string
	disks         []DiskInfo
	agent         AgentInfo
	lastHeartbeat time.Time
	persisted     bool

	store storage.HostStore
}

// newHostFromRecord wraps a persisted host row. Used on bootstrap.
func newHostFromRecord(rec *storage.HostRecord, store storage.HostStore) *Host {
	attrs := make(map[string]string, len(rec.Attributes))
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	return &Host{
		name:       rec.Name,
		osType:     rec.OSType,
		state:      HostStateInit,
		health:     HostHealth{Status: HealthUnknown},
		attributes: attrs,
		agent:      AgentInfo{ID: rec.AgentID, Version: rec.AgentVersion},
		persisted:  true,
		store:      store,
	}
}

// newTransientHost constructs a fresh, not-yet-persisted host record with
// unknown health, empty attributes, an empty disk inventory, and a newly
// assigned agent id.
func newTransientHost(name string, store storage.HostStore) *Host {
	return &Host{
		name:       name,
		state:      HostStateInit,
		health:     HostHealth{Status: HealthUnknown},
		attributes: make(map[string]string),
		agent:      AgentInfo{ID: uuid.NewString()},
		store:      store,
	}
}

// Name returns the host's unique name.
func (h *Host) Name() string {
	return h.name
}

// OSType returns the host's operating system identifier, e.g. "centos6".
func (h *Host) OSType() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.osType
}

// SetOSType records the host's operating system identifier.
func (h *Host) SetOSType(osType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.osType = osType
}

// State returns the host's lifecycle state.
func (h *Host) State() HostState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// SetState moves the host to a new lifecycle state.
func (h *Host) SetState(state HostState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

// Health returns the host's last reported health.
func (h *Host) Health() HostHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health
}

// SetHealth records a health report for the host.
func (h *Host) SetHealth(health HostHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.health = health
}

// Attribute returns one free-form attribute value.
func (h *Host) Attribute(key string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.attributes[key]
	return v, ok
}

// Attributes returns a copy of the host's free-form attributes.
func (h *Host) Attributes() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.attributes))
	for k, v := range h.attributes {
		out[k] = v
	}
	return out
}

// SetAttribute sets one free-form attribute.
func (h *Host) SetAttribute(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attributes[key] = value
}

// Disks returns a copy of the host's disk inventory.
func (h *Host) Disks() []DiskInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]DiskInfo(nil), h.disks...)
}

// SetDisks replaces the host's disk inventory.
func (h *Host) SetDisks(disks []DiskInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disks = append([]DiskInfo(nil), disks...)
}

// Agent returns the host's agent metadata.
func (h *Host) Agent() AgentInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agent
}

// SetAgentVersion records the version the host's agent reported.
func (h *Host) SetAgentVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agent.Version = version
}

// Heartbeat records that the host's agent checked in now.
func (h *Host) Heartbeat() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHeartbeat = time.Now()
	if h.state == HostStateInit || h.state == HostStateHeartbeatLost {
		h.state = HostStateHealthy
	}
}

// LastHeartbeat returns the time of the last agent check-in, zero if none.
func (h *Host) LastHeartbeat() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHeartbeat
}

// Persisted reports whether the host has a backing row in the store.
func (h *Host) Persisted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.persisted
}

// Save writes the host to the backing store: an insert for a transient
// host, an update otherwise.
func (h *Host) Save(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &storage.HostRecord{
		Name:         h.name,
		OSType:       h.osType,
		AgentID:      h.agent.ID,
		AgentVersion: h.agent.Version,
		Attributes:   h.attributes,
	}

	if !h.persisted {
		if err := h.store.CreateHost(ctx, rec); err != nil {
			return fmt.Errorf("failed to persist host %s: %w", h.name, err)
		}
		h.persisted = true
		return nil
	}

	if err := h.store.UpdateHost(ctx, rec); err != nil {
		return fmt.Errorf("failed to update host %s: %w", h.name, err)
	}
	return nil
}

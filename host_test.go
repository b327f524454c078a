package clusterstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbias/clusterstate/storage"
)

func TestTransientHostDefaults(t *testing.T) {
	h := newTransientHost("h1", newMemStore())

	require.Equal(t, "h1", h.Name())
	require.Equal(t, HostStateInit, h.State())
	require.Equal(t, HealthUnknown, h.Health().Status)
	require.Empty(t, h.Attributes())
	require.Empty(t, h.Disks())
	require.NotEmpty(t, h.Agent().ID)
	require.True(t, h.LastHeartbeat().IsZero())
	require.False(t, h.Persisted())
}

func TestHostSaveInsertThenUpdate(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	h := newTransientHost("h1", store)
	h.SetOSType("centos6")

	require.NoError(t, h.Save(ctx))
	require.True(t, h.Persisted())

	rec, err := store.FindHostByName(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "centos6", rec.OSType)

	h.SetAgentVersion("2.1.0")
	h.SetAttribute("rack", "r1")
	require.NoError(t, h.Save(ctx))

	rec, err = store.FindHostByName(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "2.1.0", rec.AgentVersion)
	require.Equal(t, "r1", rec.Attributes["rack"])
}

func TestHostHeartbeatTransitions(t *testing.T) {
	h := newTransientHost("h1", newMemStore())

	h.Heartbeat()
	require.Equal(t, HostStateHealthy, h.State())
	require.False(t, h.LastHeartbeat().IsZero())

	h.SetState(HostStateHeartbeatLost)
	h.Heartbeat()
	require.Equal(t, HostStateHealthy, h.State())

	// A heartbeat does not mask a reported unhealthy state.
	h.SetState(HostStateUnhealthy)
	h.Heartbeat()
	require.Equal(t, HostStateUnhealthy, h.State())
}

func TestHostAttributeAndDiskCopies(t *testing.T) {
	h := newTransientHost("h1", newMemStore())
	h.SetAttribute("rack", "r1")

	attrs := h.Attributes()
	attrs["rack"] = "tampered"
	got, ok := h.Attribute("rack")
	require.True(t, ok)
	require.Equal(t, "r1", got)

	h.SetDisks([]DiskInfo{{MountPoint: "/", Device: "sda1", TotalBytes: 100, FreeBytes: 40}})
	disks := h.Disks()
	disks[0].FreeBytes = 0
	require.Equal(t, uint64(40), h.Disks()[0].FreeBytes)
}

func TestHostFromRecordIsPersisted(t *testing.T) {
	rec := &storage.HostRecord{
		Name: "h1", OSType: "centos6",
		AgentID: "agent-1", AgentVersion: "2.0.0",
		Attributes: map[string]string{"rack": "r1"},
	}
	h := newHostFromRecord(rec, newMemStore())

	require.True(t, h.Persisted())
	require.Equal(t, "agent-1", h.Agent().ID)

	// The host holds its own attribute map, detached from the record.
	h.SetAttribute("rack", "r2")
	require.Equal(t, "r1", rec.Attributes["rack"])
}

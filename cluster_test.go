package clusterstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbias/clusterstate/stackmeta"
	"github.com/rbias/clusterstate/storage"
)

func TestClusterServices(t *testing.T) {
	store := newMemStore()
	c := newCluster(&storage.ClusterRecord{ID: 1, Name: "c1"}, store)

	require.True(t, c.Removable())
	require.Empty(t, c.Services())

	c.AddService("namenode")
	c.AddService("datanode")
	c.AddService("namenode") // idempotent
	require.False(t, c.Removable())
	require.Equal(t, []string{"datanode", "namenode"}, c.Services())

	c.RemoveService("namenode")
	require.False(t, c.Removable())
	c.RemoveService("datanode")
	require.True(t, c.Removable())
}

func TestClusterSetDesiredStack(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	id := store.seedCluster("c1", "HDP", "1.3.0")
	rec, err := store.FindClusterByID(ctx, id)
	require.NoError(t, err)
	c := newCluster(rec, store)

	next := stackmeta.StackID{Name: "HDP", Version: "2.0.0"}
	require.NoError(t, c.SetDesiredStack(ctx, next))
	require.Equal(t, next, c.DesiredStack())

	// The change is persisted, not just recorded in memory.
	rec, err = store.FindClusterByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "2.0.0", rec.StackVersion)
}

func TestClusterSetDesiredStackStoreFailure(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	// Record 99 does not exist in the store, so the update fails.
	c := newCluster(&storage.ClusterRecord{ID: 99, Name: "ghost", StackName: "HDP", StackVersion: "1.3.0"}, store)

	err := c.SetDesiredStack(ctx, stackmeta.StackID{Name: "HDP", Version: "2.0.0"})
	require.Error(t, err)
	require.Equal(t, stackmeta.StackID{Name: "HDP", Version: "1.3.0"}, c.DesiredStack(),
		"a failed persist must not change the in-memory stack")
}

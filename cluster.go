package clusterstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rbias/clusterstate/stackmeta"
	"github.com/rbias/clusterstate/storage"
)

// Cluster is a named, identified collection of hosts associated with a
// desired software stack version. Identity is the immutable numeric id;
// the display name is a mutable lookup key owned by the registry's name
// index. All methods are safe for concurrent use.
type Cluster struct {
	id int64

	mu           sync.RWMutex
	name         string
	desiredStack stackmeta.StackID
	services     map[string]struct{}

	store storage.ClusterStore
}

// newCluster wraps a persisted cluster record.
func newCluster(rec *storage.ClusterRecord, store storage.ClusterStore) *Cluster {
	return &Cluster{
		id:   rec.ID,
		name: rec.Name,
		desiredStack: stackmeta.StackID{
			Name:    rec.StackName,
			Version: rec.StackVersion,
		},
		services: make(map[string]struct{}),
		store:    store,
	}
}

// ID returns the cluster's immutable numeric id.
func (c *Cluster) ID() int64 {
	return c.id
}

// Name returns the cluster's current display name.
func (c *Cluster) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// DesiredStack returns the stack the cluster intends to run.
func (c *Cluster) DesiredStack() stackmeta.StackID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desiredStack
}

// SetDesiredStack persists and records a new desired stack version.
func (c *Cluster) SetDesiredStack(ctx context.Context, stack stackmeta.StackID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &storage.ClusterRecord{
		ID:           c.id,
		Name:         c.name,
		StackName:    stack.Name,
		StackVersion: stack.Version,
	}
	if err := c.store.UpdateCluster(ctx, rec); err != nil {
		return fmt.Errorf("failed to update desired stack of cluster %s: %w", c.name, err)
	}
	c.desiredStack = stack
	return nil
}

// AddService marks a service as deployed on the cluster. A cluster with
// deployed services refuses deletion.
func (c *Cluster) AddService(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = struct{}{}
}

// RemoveService marks a service as no longer deployed.
func (c *Cluster) RemoveService(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, name)
}

// Services returns the sorted names of services deployed on the cluster.
func (c *Cluster) Services() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.services))
	for name := range c.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Removable reports whether the cluster may currently be deleted. A
// cluster is removable only while no services are deployed on it.
func (c *Cluster) Removable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services) == 0
}

// rename persists a new display name and records it on the cluster. The
// registry's name index is updated by the caller, which holds the
// registry's write lock.
func (c *Cluster) rename(ctx context.Context, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &storage.ClusterRecord{
		ID:           c.id,
		Name:         newName,
		StackName:    c.desiredStack.Name,
		StackVersion: c.desiredStack.Version,
	}
	if err := c.store.UpdateCluster(ctx, rec); err != nil {
		return fmt.Errorf("failed to rename cluster %s: %w", c.name, err)
	}
	c.name = newName
	return nil
}

// delete tears down the cluster's persisted state, including its
// membership rows. Invoked by the registry after the removable check.
func (c *Cluster) delete(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteCluster(ctx, c.id); err != nil {
		return fmt.Errorf("failed to delete cluster %s: %w", c.name, err)
	}
	return nil
}

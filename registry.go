// Package clusterstate is the authoritative in-memory registry of clusters
// and hosts for a cluster-management platform. It answers lookups by name
// and id, maintains the many-to-many relationship between clusters and
// hosts, and serializes structural mutations against a durable backing
// store.
//
// The registry hydrates itself from the store on first use and keeps five
// mirrored indices: cluster-by-name, cluster-by-id, host-by-name,
// cluster-to-hosts, and host-to-clusters. The two relationship indices
// always agree; a single reader/writer lock guards every multi-step
// mutation so readers never observe a half-applied change.
package clusterstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbias/clusterstate/stackmeta"
	"github.com/rbias/clusterstate/storage"
)

// Registry owns all Cluster and Host objects for the process. Construct
// one instance at process start with NewRegistry or Open and share it by
// reference; it has no teardown beyond closing the backing store.
//
// Every public operation first ensures the one-shot hydration has run,
// then takes the lock in the appropriate mode. Mutations persist through
// the backing store before touching the in-memory indices, so a store
// failure never leaves the indices partially updated. Store latency is
// paid while the write lock is held; that is a deliberate trade for
// simplicity, and it means a slow store throttles all concurrent callers.
type Registry struct {
	store        storage.Store
	meta         stackmeta.Provider
	defaultStack stackmeta.StackID

	// mu guards the five indices below. Individual map operations would be
	// safe behind finer locks, but the invariants span several of them:
	// duplicate checks, the paired updates to both relationship indices,
	// and the rename across two keyed structures.
	mu           sync.RWMutex
	clusters     map[string]*Cluster
	clustersByID map[int64]*Cluster
	hosts        map[string]*Host
	hostClusters map[string]map[string]*Cluster
	clusterHosts map[string]map[string]*Host

	loadOnce sync.Once
	loadErr  error
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultStack sets the desired stack assigned to newly created
// clusters.
func WithDefaultStack(stack stackmeta.StackID) Option {
	return func(r *Registry) {
		r.defaultStack = stack
	}
}

// NewRegistry creates a registry over the given backing store and stack
// metadata provider. The indices hydrate lazily on first use.
func NewRegistry(store storage.Store, meta stackmeta.Provider, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		meta:         meta,
		clusters:     make(map[string]*Cluster),
		clustersByID: make(map[int64]*Cluster),
		hosts:        make(map[string]*Host),
		hostClusters: make(map[string]map[string]*Cluster),
		clusterHosts: make(map[string]map[string]*Host),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close releases the backing store.
func (r *Registry) Close() error {
	return r.store.Close()
}

// ensureLoaded runs the one-shot hydration. Concurrent first callers
// block on the sync.Once until the winner finishes; a hydration failure
// is cached and returned to every subsequent caller.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.loadOnce.Do(func() {
		r.loadErr = r.load(ctx)
	})
	return r.loadErr
}

// load populates the indices from the backing store: clusters first, then
// hosts, then the join relation into both relationship indices.
func (r *Registry) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clusterRecs, err := r.store.FindAllClusters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}
	for i := range clusterRecs {
		c := newCluster(&clusterRecs[i], r.store)
		r.clusters[c.Name()] = c
		r.clustersByID[c.ID()] = c
		r.clusterHosts[c.Name()] = make(map[string]*Host)
	}

	hostRecs, err := r.store.FindAllHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load hosts: %w", err)
	}
	for i := range hostRecs {
		h := newHostFromRecord(&hostRecs[i], r.store)
		r.hosts[h.Name()] = h
		r.hostClusters[h.Name()] = make(map[string]*Cluster)
	}

	memberships, err := r.store.FindAllMemberships(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cluster memberships: %w", err)
	}
	for _, m := range memberships {
		cluster, ok := r.clustersByID[m.ClusterID]
		if !ok {
			slog.Warn("skipping membership of unknown cluster",
				"cluster_id", m.ClusterID, "host", m.HostName)
			continue
		}
		host, ok := r.hosts[m.HostName]
		if !ok {
			slog.Warn("skipping membership of unknown host",
				"cluster", cluster.Name(), "host", m.HostName)
			continue
		}
		r.hostClusters[m.HostName][cluster.Name()] = cluster
		r.clusterHosts[cluster.Name()][m.HostName] = host
	}

	slog.Info("registry hydrated",
		"clusters", len(r.clusters),
		"hosts", len(r.hosts),
		"memberships", len(memberships))
	return nil
}

// AddCluster creates and persists a new cluster with a freshly assigned
// id and the registry's default desired stack, then registers it under
// both the name and id indices. Returns DuplicateClusterError if the name
// is taken.
func (r *Registry) AddCluster(ctx context.Context, name string) (*Cluster, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	// Optimistic check keeps the common duplicate case off the write lock.
	r.mu.RLock()
	_, exists := r.clusters[name]
	r.mu.RUnlock()
	if exists {
		return nil, &DuplicateClusterError{Name: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clusters[name]; exists {
		return nil, &DuplicateClusterError{Name: name}
	}

	rec := &storage.ClusterRecord{
		Name:         name,
		StackName:    r.defaultStack.Name,
		StackVersion: r.defaultStack.Version,
	}
	if err := r.store.CreateCluster(ctx, rec); err != nil {
		slog.Warn("unable to create cluster", "cluster", name, "error", err)
		return nil, fmt.Errorf("failed to create cluster %s: %w", name, err)
	}

	cluster := newCluster(rec, r.store)
	r.clusters[name] = cluster
	r.clustersByID[cluster.ID()] = cluster
	r.clusterHosts[name] = make(map[string]*Host)

	slog.Info("cluster created", "cluster", name, "cluster_id", cluster.ID())
	return cluster, nil
}

// GetCluster returns the cluster with the given name.
func (r *Registry) GetCluster(ctx context.Context, name string) (*Cluster, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cluster, ok := r.clusters[name]
	if !ok {
		return nil, &ClusterNotFoundError{Name: name}
	}
	return cluster, nil
}

// GetClusterByID returns the cluster with the given id.
func (r *Registry) GetClusterByID(ctx context.Context, id int64) (*Cluster, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cluster, ok := r.clustersByID[id]
	if !ok {
		return nil, &ClusterNotFoundError{ID: id}
	}
	return cluster, nil
}

// Clusters returns a snapshot of all registered clusters.
func (r *Registry) Clusters(ctx context.Context) ([]*Cluster, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Cluster, 0, len(r.clusters))
	for _, cluster := range r.clusters {
		out = append(out, cluster)
	}
	return out, nil
}

// AddHost registers a fresh, not-yet-persisted host record with unknown
// health, empty attributes, an empty disk inventory, and the initial
// lifecycle state. Returns DuplicateHostError if the name is taken. The
// host is persisted lazily, at the latest when it is first mapped into a
// cluster.
func (r *Registry) AddHost(ctx context.Context, name string) (*Host, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	_, exists := r.hosts[name]
	r.mu.RUnlock()
	if exists {
		return nil, &DuplicateHostError{Name: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hosts[name]; exists {
		return nil, &DuplicateHostError{Name: name}
	}

	host := newTransientHost(name, r.store)
	r.hosts[name] = host
	r.hostClusters[name] = make(map[string]*Cluster)

	slog.Debug("host added", "host", name, "agent_id", host.Agent().ID)
	return host, nil
}

// GetHost returns the host with the given name.
func (r *Registry) GetHost(ctx context.Context, name string) (*Host, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	host, ok := r.hosts[name]
	if !ok {
		return nil, &HostNotFoundError{Name: name}
	}
	return host, nil
}

// Hosts returns a snapshot of all registered hosts.
func (r *Registry) Hosts(ctx context.Context) ([]*Host, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Host, 0, len(r.hosts))
	for _, host := range r.hosts {
		out = append(out, host)
	}
	return out, nil
}

// ClustersForHost returns a snapshot of the clusters the host is mapped
// into.
func (r *Registry) ClustersForHost(ctx context.Context, hostname string) ([]*Cluster, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.hostClusters[hostname]
	if !ok {
		return nil, &HostNotFoundError{Name: hostname}
	}
	out := make([]*Cluster, 0, len(set))
	for _, cluster := range set {
		out = append(out, cluster)
	}
	return out, nil
}

// HostsForCluster returns a snapshot of the hosts mapped into the cluster.
func (r *Registry) HostsForCluster(ctx context.Context, clusterName string) ([]*Host, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.clusterHosts[clusterName]
	if !ok {
		return nil, &ClusterNotFoundError{Name: clusterName}
	}
	out := make([]*Host, 0, len(set))
	for _, host := range set {
		out = append(out, host)
	}
	return out, nil
}

// MapHostToCluster maps one host into one cluster. The membership is
// persisted before either in-memory relationship index is touched, so a
// store failure leaves the indices unchanged. Returns HostNotFoundError
// or ClusterNotFoundError for unknown names, DuplicateMappingError if the
// pair already exists, and IncompatibleHostError if the host's platform
// is not supported by the cluster's desired stack.
func (r *Registry) MapHostToCluster(ctx context.Context, hostname, clusterName string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mapHostToClusterLocked(ctx, hostname, clusterName)
}

// MapHostsToCluster maps several hosts into one cluster under a single
// write-lock acquisition. The batch is grouped, not transactional: a
// failure partway through leaves earlier successful mappings in place and
// reports the host that failed.
func (r *Registry) MapHostsToCluster(ctx context.Context, hostnames []string, clusterName string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hostname := range hostnames {
		if err := r.mapHostToClusterLocked(ctx, hostname, clusterName); err != nil {
			return fmt.Errorf("mapping host %s: %w", hostname, err)
		}
	}
	return nil
}

// mapHostToClusterLocked is the single-pair mapping step. Callers hold
// the write lock.
func (r *Registry) mapHostToClusterLocked(ctx context.Context, hostname, clusterName string) error {
	host, ok := r.hosts[hostname]
	if !ok {
		return &HostNotFoundError{Name: hostname}
	}
	cluster, ok := r.clusters[clusterName]
	if !ok {
		return &ClusterNotFoundError{Name: clusterName}
	}

	if _, mapped := r.hostClusters[hostname][clusterName]; mapped {
		return &DuplicateMappingError{Host: hostname, Cluster: clusterName}
	}

	if !r.osSupportedByStack(cluster, host) {
		err := &IncompatibleHostError{
			Host:    hostname,
			OSType:  host.OSType(),
			Cluster: clusterName,
			Stack:   cluster.DesiredStack(),
		}
		slog.Warn("refusing host mapping", "error", err)
		return err
	}

	// The join row references the host row, so a transient host is
	// persisted first.
	if !host.Persisted() {
		if err := host.Save(ctx); err != nil {
			return err
		}
	}
	if err := r.store.CreateMembership(ctx, cluster.ID(), hostname); err != nil {
		return fmt.Errorf("failed to persist mapping of host %s to cluster %s: %w",
			hostname, clusterName, err)
	}

	r.hostClusters[hostname][clusterName] = cluster
	r.clusterHosts[clusterName][hostname] = host

	slog.Debug("host mapped to cluster",
		"cluster", clusterName, "cluster_id", cluster.ID(), "host", hostname)
	return nil
}

// RenameCluster moves the cluster registered under oldName to newName in
// the name-keyed indices. The id index is untouched; identity is id
// based and the name is just a lookup key. Returns ClusterNotFoundError
// if oldName is absent and DuplicateClusterError if newName is taken.
func (r *Registry) RenameCluster(ctx context.Context, oldName, newName string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, ok := r.clusters[oldName]
	if !ok {
		return &ClusterNotFoundError{Name: oldName}
	}
	if oldName == newName {
		return nil
	}
	if _, exists := r.clusters[newName]; exists {
		return &DuplicateClusterError{Name: newName}
	}

	if err := cluster.rename(ctx, newName); err != nil {
		return err
	}

	delete(r.clusters, oldName)
	r.clusters[newName] = cluster
	r.clusterHosts[newName] = r.clusterHosts[oldName]
	delete(r.clusterHosts, oldName)

	// Re-key the mirrored host-side entries.
	for hostname := range r.clusterHosts[newName] {
		set := r.hostClusters[hostname]
		delete(set, oldName)
		set[newName] = cluster
	}

	slog.Info("cluster renamed", "from", oldName, "to", newName, "cluster_id", cluster.ID())
	return nil
}

// DeleteCluster removes a cluster after its own removable predicate
// permits it. Teardown deletes the persisted record and membership rows,
// then the cluster is removed from every host's cluster set, from the
// cluster-to-hosts index, and from both the name and id indices. Returns
// NotRemovableError while the cluster still has deployed services.
func (r *Registry) DeleteCluster(ctx context.Context, name string) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, ok := r.clusters[name]
	if !ok {
		return &ClusterNotFoundError{Name: name}
	}
	if !cluster.Removable() {
		return &NotRemovableError{Name: name}
	}

	if err := cluster.delete(ctx); err != nil {
		return err
	}

	for hostname := range r.clusterHosts[name] {
		delete(r.hostClusters[hostname], name)
	}
	delete(r.clusterHosts, name)
	delete(r.clusters, name)
	delete(r.clustersByID, cluster.ID())

	slog.Info("cluster deleted", "cluster", name, "cluster_id", cluster.ID())
	return nil
}

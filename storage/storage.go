// Package storage defines the persistence contracts the cluster registry
// depends on: cluster records, host records, and the cluster-host join
// relation. Backends live in the sqlite and postgres subpackages; the
// registry only ever sees these interfaces.
package storage

import (
	"context"
	"errors"
)

// ErrConflict is returned by create operations that violate a uniqueness
// constraint (duplicate cluster name, duplicate host name, or an already
// existing cluster-host membership). Backends wrap the driver error and
// callers test with errors.Is.
var ErrConflict = errors.New("storage: conflict")

// ErrNotFound is returned by lookups and updates that match no row.
var ErrNotFound = errors.New("storage: not found")

// ClusterRecord is the persisted shape of a cluster. ID is assigned by the
// backend on create and immutable afterwards; Name is unique among live
// clusters.
type ClusterRecord struct {
	ID           int64
	Name         string
	StackName    string
	StackVersion string
}

// HostRecord is the persisted shape of a host. Hosts are keyed by name;
// there is no separate host id.
type HostRecord struct {
	Name         string
	OSType       string
	AgentID      string
	AgentVersion string
	Attributes   map[string]string
}

// Membership is one row of the cluster-host join relation.
type Membership struct {
	ClusterID int64
	HostName  string
}

// ClusterStore persists cluster records.
type ClusterStore interface {
	// CreateCluster inserts a new cluster and assigns rec.ID.
	// Returns ErrConflict if the name is taken.
	CreateCluster(ctx context.Context, rec *ClusterRecord) error
	FindAllClusters(ctx context.Context) ([]ClusterRecord, error)
	FindClusterByID(ctx context.Context, id int64) (*ClusterRecord, error)
	// UpdateCluster rewrites the record identified by rec.ID (rename,
	// desired stack change). Returns ErrNotFound if the id is unknown and
	// ErrConflict if a rename collides with an existing name.
	UpdateCluster(ctx context.Context, rec *ClusterRecord) error
	DeleteCluster(ctx context.Context, id int64) error
}

// HostStore persists host records.
type HostStore interface {
	// CreateHost inserts a new host. Returns ErrConflict if the name is taken.
	CreateHost(ctx context.Context, rec *HostRecord) error
	FindAllHosts(ctx context.Context) ([]HostRecord, error)
	FindHostByName(ctx context.Context, name string) (*HostRecord, error)
	UpdateHost(ctx context.Context, rec *HostRecord) error
}

// MembershipStore persists the cluster-host join relation.
type MembershipStore interface {
	// CreateMembership inserts one (cluster, host) pair.
	// Returns ErrConflict if the pair already exists.
	CreateMembership(ctx context.Context, clusterID int64, hostName string) error
	FindAllMemberships(ctx context.Context) ([]Membership, error)
	// DeleteClusterMemberships removes every membership of one cluster.
	DeleteClusterMemberships(ctx context.Context, clusterID int64) error
}

// Store is the full backing-store surface the registry consumes.
type Store interface {
	ClusterStore
	HostStore
	MembershipStore

	// Close releases any resources held by the store.
	Close() error
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}

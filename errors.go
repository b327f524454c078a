package clusterstate

import (
	"fmt"

	"github.com/rbias/clusterstate/stackmeta"
)

// ClusterNotFoundError is returned when a cluster lookup by name or id
// misses.
type ClusterNotFoundError struct {
	Name string
	ID   int64
}

func (e *ClusterNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("cluster not found: %s", e.Name)
	}
	return fmt.Sprintf("cluster not found: id=%d", e.ID)
}

// HostNotFoundError is returned when a host lookup by name misses.
type HostNotFoundError struct {
	Name string
}

func (e *HostNotFoundError) Error() string {
	return fmt.Sprintf("host not found: %s", e.Name)
}

// DuplicateClusterError is returned when creating or renaming a cluster
// would collide with an existing cluster name.
type DuplicateClusterError struct {
	Name string
}

func (e *DuplicateClusterError) Error() string {
	return fmt.Sprintf("cluster already exists: %s", e.Name)
}

// DuplicateHostError is returned when registering a host whose name is
// already taken.
type DuplicateHostError struct {
	Name string
}

func (e *DuplicateHostError) Error() string {
	return fmt.Sprintf("host already exists: %s", e.Name)
}

// DuplicateMappingError is returned when a host is already mapped to the
// target cluster.
type DuplicateMappingError struct {
	Host    string
	Cluster string
}

func (e *DuplicateMappingError) Error() string {
	return fmt.Sprintf("host %s is already mapped to cluster %s", e.Host, e.Cluster)
}

// IncompatibleHostError is returned when a host's platform is not among
// the repositories provided by the cluster's desired stack.
type IncompatibleHostError struct {
	Host    string
	OSType  string
	Cluster string
	Stack   stackmeta.StackID
}

func (e *IncompatibleHostError) Error() string {
	return fmt.Sprintf("stack %s of cluster %s does not support os type %q of host %s",
		e.Stack, e.Cluster, e.OSType, e.Host)
}

// NotRemovableError is returned when deleting a cluster that still has
// blocking dependents.
type NotRemovableError struct {
	Name string
}

func (e *NotRemovableError) Error() string {
	return fmt.Sprintf("cluster %s cannot be removed while it has deployed services", e.Name)
}

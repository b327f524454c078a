package clusterstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rbias/clusterstate/storage"
)

// memStore is an in-memory storage.Store used to exercise the registry
// without a database. It enforces the same conflict semantics as the real
// backends and counts bulk reads so tests can assert hydration runs once.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	clusters    map[int64]storage.ClusterRecord
	hosts       map[string]storage.HostRecord
	memberships map[string]struct{}

	findAllClusterCalls int

	failCreateMembership error
	failFindAllClusters  error
}

func newMemStore() *memStore {
	return &memStore{
		clusters:    make(map[int64]storage.ClusterRecord),
		hosts:       make(map[string]storage.HostRecord),
		memberships: make(map[string]struct{}),
	}
}

func membershipKey(clusterID int64, hostName string) string {
	return fmt.Sprintf("%d/%s", clusterID, hostName)
}

// seedCluster inserts a cluster record directly, bypassing the registry.
func (s *memStore) seedCluster(name, stackName, stackVersion string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.clusters[s.nextID] = storage.ClusterRecord{
		ID: s.nextID, Name: name, StackName: stackName, StackVersion: stackVersion,
	}
	return s.nextID
}

// seedHost inserts a host record directly, bypassing the registry.
func (s *memStore) seedHost(name, osType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[name] = storage.HostRecord{Name: name, OSType: osType}
}

// seedMembership inserts a join row directly, bypassing the registry.
func (s *memStore) seedMembership(clusterID int64, hostName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey(clusterID, hostName)] = struct{}{}
}

func (s *memStore) hasMembership(clusterID int64, hostName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.memberships[membershipKey(clusterID, hostName)]
	return ok
}

func (s *memStore) loadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAllClusterCalls
}

func (s *memStore) CreateCluster(ctx context.Context, rec *storage.ClusterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clusters {
		if existing.Name == rec.Name {
			return fmt.Errorf("cluster %s: %w", rec.Name, storage.ErrConflict)
		}
	}
	s.nextID++
	rec.ID = s.nextID
	s.clusters[rec.ID] = *rec
	return nil
}

func (s *memStore) FindAllClusters(ctx context.Context) ([]storage.ClusterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findAllClusterCalls++
	if s.failFindAllClusters != nil {
		return nil, s.failFindAllClusters
	}
	out := make([]storage.ClusterRecord, 0, len(s.clusters))
	for _, rec := range s.clusters {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) FindClusterByID(ctx context.Context, id int64) (*storage.ClusterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clusters[id]
	if !ok {
		return nil, fmt.Errorf("cluster %d: %w", id, storage.ErrNotFound)
	}
	return &rec, nil
}

func (s *memStore) UpdateCluster(ctx context.Context, rec *storage.ClusterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[rec.ID]; !ok {
		return fmt.Errorf("cluster %d: %w", rec.ID, storage.ErrNotFound)
	}
	for id, existing := range s.clusters {
		if id != rec.ID && existing.Name == rec.Name {
			return fmt.Errorf("cluster %s: %w", rec.Name, storage.ErrConflict)
		}
	}
	s.clusters[rec.ID] = *rec
	return nil
}

func (s *memStore) DeleteCluster(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[id]; !ok {
		return fmt.Errorf("cluster %d: %w", id, storage.ErrNotFound)
	}
	delete(s.clusters, id)
	for key := range s.memberships {
		var cid int64
		var host string
		fmt.Sscanf(key, "%d/%s", &cid, &host)
		if cid == id {
			delete(s.memberships, key)
		}
	}
	return nil
}

func (s *memStore) CreateHost(ctx context.Context, rec *storage.HostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[rec.Name]; ok {
		return fmt.Errorf("host %s: %w", rec.Name, storage.ErrConflict)
	}
	s.hosts[rec.Name] = *rec
	return nil
}

func (s *memStore) FindAllHosts(ctx context.Context) ([]storage.HostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.HostRecord, 0, len(s.hosts))
	for _, rec := range s.hosts {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) FindHostByName(ctx context.Context, name string) (*storage.HostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.hosts[name]
	if !ok {
		return nil, fmt.Errorf("host %s: %w", name, storage.ErrNotFound)
	}
	return &rec, nil
}

func (s *memStore) UpdateHost(ctx context.Context, rec *storage.HostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[rec.Name]; !ok {
		return fmt.Errorf("host %s: %w", rec.Name, storage.ErrNotFound)
	}
	s.hosts[rec.Name] = *rec
	return nil
}

func (s *memStore) CreateMembership(ctx context.Context, clusterID int64, hostName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateMembership != nil {
		return s.failCreateMembership
	}
	key := membershipKey(clusterID, hostName)
	if _, ok := s.memberships[key]; ok {
		return fmt.Errorf("membership (%d, %s): %w", clusterID, hostName, storage.ErrConflict)
	}
	s.memberships[key] = struct{}{}
	return nil
}

func (s *memStore) FindAllMemberships(ctx context.Context) ([]storage.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Membership, 0, len(s.memberships))
	for key := range s.memberships {
		var m storage.Membership
		fmt.Sscanf(key, "%d/%s", &m.ClusterID, &m.HostName)
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) DeleteClusterMemberships(ctx context.Context, clusterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.memberships {
		var cid int64
		var host string
		fmt.Sscanf(key, "%d/%s", &cid, &host)
		if cid == clusterID {
			delete(s.memberships, key)
		}
	}
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Health(ctx context.Context) error { return nil }

var _ storage.Store = (*memStore)(nil)

// Package sqlite provides a SQLite implementation of the storage.Store
// interface. It uses an embedded SQLite database with WAL mode for better
// concurrency.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"

	"github.com/rbias/clusterstate/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Config holds configuration options for the SQLite store.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Use ":memory:" for an in-memory database (useful for testing).
	// Default: "./clusterstate.db"
	Path string

	// BusyTimeout is the maximum time to wait for a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 25
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	// Default: 1 hour
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./clusterstate.db",
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// New creates a new SQLite store with the provided configuration and runs
// any pending schema migrations.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Resolve absolute path (except for :memory:)
	dbPath := cfg.Path
	if dbPath != ":memory:" {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		dbPath = absPath
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		dbPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := storage.RunMigrations(db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

var _ storage.Store = (*Store)(nil)

// CreateCluster inserts a new cluster record and assigns its id.
func (s *Store) CreateCluster(ctx context.Context, rec *storage.ClusterRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO clusters (cluster_name, stack_name, stack_version)
		VALUES (?, ?, ?)`,
		rec.Name, rec.StackName, rec.StackVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cluster %s: %w", rec.Name, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert cluster: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get cluster id: %w", err)
	}
	rec.ID = id
	return nil
}

// FindAllClusters returns every persisted cluster record.
func (s *Store) FindAllClusters(ctx context.Context) ([]storage.ClusterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, cluster_name, stack_name, stack_version
		FROM clusters
		ORDER BY cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var records []storage.ClusterRecord
	for rows.Next() {
		var rec storage.ClusterRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.StackName, &rec.StackVersion); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}
	return records, nil
}

// FindClusterByID returns the cluster record with the given id.
func (s *Store) FindClusterByID(ctx context.Context, id int64) (*storage.ClusterRecord, error) {
	rec := &storage.ClusterRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT cluster_id, cluster_name, stack_name, stack_version
		FROM clusters
		WHERE cluster_id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.StackName, &rec.StackVersion)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cluster %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster: %w", err)
	}
	return rec, nil
}

// UpdateCluster rewrites the cluster record identified by rec.ID.
func (s *Store) UpdateCluster(ctx context.Context, rec *storage.ClusterRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clusters
		SET cluster_name = ?, stack_name = ?, stack_version = ?
		WHERE cluster_id = ?`,
		rec.Name, rec.StackName, rec.StackVersion, rec.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cluster %s: %w", rec.Name, storage.ErrConflict)
		}
		return fmt.Errorf("failed to update cluster: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cluster %d: %w", rec.ID, storage.ErrNotFound)
	}
	return nil
}

// DeleteCluster removes a cluster record and its memberships in one
// transaction.
func (s *Store) DeleteCluster(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cluster_hosts WHERE cluster_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cluster memberships: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM clusters WHERE cluster_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cluster %d: %w", id, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateHost inserts a new host record.
func (s *Store) CreateHost(ctx context.Context, rec *storage.HostRecord) error {
	attrs, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hosts (host_name, os_type, agent_id, agent_version, attributes)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.OSType, rec.AgentID, rec.AgentVersion, attrs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("host %s: %w", rec.Name, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert host: %w", err)
	}
	return nil
}

// FindAllHosts returns every persisted host record.
func (s *Store) FindAllHosts(ctx context.Context) ([]storage.HostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_name, os_type, agent_id, agent_version, attributes
		FROM hosts
		ORDER BY host_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hosts: %w", err)
	}
	defer rows.Close()

	var records []storage.HostRecord
	for rows.Next() {
		rec, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hosts: %w", err)
	}
	return records, nil
}

// FindHostByName returns the host record with the given name.
func (s *Store) FindHostByName(ctx context.Context, name string) (*storage.HostRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host_name, os_type, agent_id, agent_version, attributes
		FROM hosts
		WHERE host_name = ?`, name)

	rec, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("host %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateHost rewrites the host record identified by rec.Name.
func (s *Store) UpdateHost(ctx context.Context, rec *storage.HostRecord) error {
	attrs, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE hosts
		SET os_type = ?, agent_id = ?, agent_version = ?, attributes = ?
		WHERE host_name = ?`,
		rec.OSType, rec.AgentID, rec.AgentVersion, attrs, rec.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("host %s: %w", rec.Name, storage.ErrNotFound)
	}
	return nil
}

// CreateMembership inserts one (cluster, host) join row.
func (s *Store) CreateMembership(ctx context.Context, clusterID int64, hostName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cluster_hosts (cluster_id, host_name)
		VALUES (?, ?)`,
		clusterID, hostName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("membership (%d, %s): %w", clusterID, hostName, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// FindAllMemberships returns every cluster-host join row.
func (s *Store) FindAllMemberships(ctx context.Context) ([]storage.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, host_name
		FROM cluster_hosts
		ORDER BY cluster_id, host_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []storage.Membership
	for rows.Next() {
		var m storage.Membership
		if err := rows.Scan(&m.ClusterID, &m.HostName); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// DeleteClusterMemberships removes every membership of one cluster.
func (s *Store) DeleteClusterMemberships(ctx context.Context, clusterID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cluster_hosts WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

// Close releases any resources held by the store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health performs a health check on the database connection.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanHost scans one host row, decoding the attributes JSON column.
func scanHost(scanner interface{ Scan(...any) error }) (*storage.HostRecord, error) {
	rec := &storage.HostRecord{}
	var attrs string
	if err := scanner.Scan(&rec.Name, &rec.OSType, &rec.AgentID, &rec.AgentVersion, &attrs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan host: %w", err)
	}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal host attributes: %w", err)
		}
	}
	return rec, nil
}

// marshalAttributes encodes host attributes as JSON for storage.
func marshalAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal host attributes: %w", err)
	}
	return string(data), nil
}

// isUniqueViolation reports whether err is a SQLite primary-key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case 1555, 2067: // SQLITE_CONSTRAINT_PRIMARYKEY, SQLITE_CONSTRAINT_UNIQUE
		return true
	case 19: // SQLITE_CONSTRAINT
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}

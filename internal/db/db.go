// Package db wraps the Cassandra session backing the repository-service and
// domain-controller metadata index: the repo registry, head-commit
// pointers, shares/groups/org index used by the access projector, and the
// user table HTTP Basic auth checks against. The commit/dir/file/block
// objects themselves live in the blob backend (internal/blob), not here —
// adapted from the teacher's internal/db, which kept everything (including
// fs_objects content) in Cassandra; that denormalization doesn't fit a
// content-addressed object store, so this split follows the real Seafile
// architecture instead (ccnet/seaf-server metadata in a database, objects
// in object storage).
package db

import (
	"fmt"
	"time"

	"github.com/Sesame-Disk/seafdav/internal/config"
	"github.com/apache/cassandra-gocql-driver/v2"
)

// DB wraps the Cassandra session.
type DB struct {
	session *gocql.Session
}

// New opens a Cassandra session per cfg.
func New(cfg config.DatabaseConfig) (*DB, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.LocalDC)
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to Cassandra: %w", err)
	}

	return &DB{session: session}, nil
}

// Close closes the underlying session.
func (db *DB) Close() {
	if db.session != nil {
		db.session.Close()
	}
}

// Session returns the underlying gocql session, for packages (reposvc,
// authdc) that need to issue their own queries.
func (db *DB) Session() *gocql.Session {
	return db.session
}

// Migrate creates the keyspace and tables if they don't already exist.
func (db *DB) Migrate() error {
	migrations := []string{
		migrationCreateKeyspace,
		migrationCreateUsers,
		migrationCreateUsersByEmail,
		migrationCreateOrgs,
		migrationCreateOrgMembers,
		migrationCreateRepos,
		migrationCreateReposByOwner,
		migrationCreateShares,
		migrationCreateGroups,
		migrationCreateGroupMembers,
		migrationCreateGroupRepos,
		migrationCreatePublicRepos,
	}

	for _, migration := range migrations {
		if err := db.session.Query(migration).Exec(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func parseConsistency(s string) gocql.Consistency {
	switch s {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.LocalQuorum
	}
}

const migrationCreateKeyspace = `
CREATE KEYSPACE IF NOT EXISTS seafdav WITH replication = {
	'class': 'SimpleStrategy',
	'replication_factor': 1
}`

// users holds the password hash HTTP Basic auth checks against (internal/authdc).
const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	password_hash TEXT,
	is_guest BOOLEAN,
	org_id BIGINT,
	quota_bytes BIGINT,
	created_at TIMESTAMP
)`

const migrationCreateUsersByEmail = `
CREATE TABLE IF NOT EXISTS users_by_email (
	email TEXT PRIMARY KEY,
	org_id BIGINT
)`

const migrationCreateOrgs = `
CREATE TABLE IF NOT EXISTS orgs (
	org_id BIGINT PRIMARY KEY,
	name TEXT,
	created_at TIMESTAMP
)`

const migrationCreateOrgMembers = `
CREATE TABLE IF NOT EXISTS org_members (
	org_id BIGINT,
	email TEXT,
	PRIMARY KEY ((org_id), email)
)`

// repos is the repository registry: id, name, owner and the head-commit
// pointer the resolver reads before walking the object tree.
const migrationCreateRepos = `
CREATE TABLE IF NOT EXISTS repos (
	repo_id TEXT PRIMARY KEY,
	org_id BIGINT,
	name TEXT,
	owner_email TEXT,
	version INT,
	encrypted BOOLEAN,
	is_virtual BOOLEAN,
	store_id TEXT,
	head_commit_id TEXT,
	size_bytes BIGINT,
	mtime TIMESTAMP
)`

const migrationCreateReposByOwner = `
CREATE TABLE IF NOT EXISTS repos_by_owner (
	owner_email TEXT,
	repo_id TEXT,
	PRIMARY KEY ((owner_email), repo_id)
)`

const migrationCreateShares = `
CREATE TABLE IF NOT EXISTS shares (
	to_email TEXT,
	repo_id TEXT,
	from_email TEXT,
	permission TEXT,
	PRIMARY KEY ((to_email), repo_id)
)`

const migrationCreateGroups = `
CREATE TABLE IF NOT EXISTS groups (
	group_id BIGINT PRIMARY KEY,
	org_id BIGINT,
	name TEXT
)`

const migrationCreateGroupMembers = `
CREATE TABLE IF NOT EXISTS group_members (
	group_id BIGINT,
	email TEXT,
	PRIMARY KEY ((group_id), email)
)`

const migrationCreateGroupRepos = `
CREATE TABLE IF NOT EXISTS group_repos (
	group_id BIGINT,
	repo_id TEXT,
	permission TEXT,
	PRIMARY KEY ((group_id), repo_id)
)`

// public_repos holds server-wide (org_id = 0) and org-scoped publish
// entries the access projector's ListInnerPubRepos/ListOrgInnerPubRepos
// read from.
const migrationCreatePublicRepos = `
CREATE TABLE IF NOT EXISTS public_repos (
	org_id BIGINT,
	repo_id TEXT,
	permission TEXT,
	PRIMARY KEY ((org_id), repo_id)
)`

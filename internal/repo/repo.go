// Package repo defines the domain model and the RepoService boundary spec.md
// §6 treats as an external collaborator: every repository, share, group and
// organization lookup the gateway needs. Types are adapted from the
// teacher's internal/models.Library/Commit/Block, renamed and trimmed to
// match the Seafile repo/commit/object vocabulary this spec uses (repo_id,
// head_commit_id, store_id, is_virtual) instead of the teacher's
// Seahub-flavored Library/FSObject shapes.
package repo

import (
	"context"
	"time"
)

// Repo is a repository (library) record: the unit of sharing and
// versioning. Encrypted repos are out of scope (spec Non-goals) but the
// field is retained so the access projector can filter them out.
type Repo struct {
	RepoID       string
	OrgID        int64 // 0 for the default (non-tenant) org
	Name         string
	OwnerEmail   string
	Version      int // 0 (legacy binary objects) or 1 (zlib JSON objects)
	Encrypted    bool
	IsVirtual    bool
	StoreID      string // physical object-store namespace; equals RepoID unless virtual
	HeadCommitID string
	SizeBytes    int64
	MTime        time.Time
}

// Principal is the authenticated identity a request carries, as populated
// by the domain controller boundary (spec §6): an email, its org (0 for the
// default/non-tenant org) and whether it's a guest.
type Principal struct {
	Email   string
	OrgID   int64
	IsGuest bool
}

// Group is a user group, used to resolve group-shared repos.
type Group struct {
	GroupID int64
	Name    string
}

// FileLastModified is one row of the batch get_files_last_modified result:
// a path within a directory mapped to the commit time it was last touched.
type FileLastModified struct {
	Path  string
	MTime int64
}

// RepoService is the external repository-service RPC boundary spec §6
// enumerates. internal/reposvc ships one Cassandra-backed implementation;
// the interface is the substitutable seam, mirroring the teacher's
// TokenStore pattern (internal/api/token_adapter.go).
type RepoService interface {
	// GetRepo returns repo metadata, or a daverr NotFound error.
	GetRepo(ctx context.Context, repoID string) (*Repo, error)

	// GetOwnedRepoList lists repos owned directly by email.
	GetOwnedRepoList(ctx context.Context, email string) ([]*Repo, error)
	// GetShareInRepoList lists repos shared to email by another user.
	GetShareInRepoList(ctx context.Context, email string) ([]*Repo, error)
	// GetGroupReposByUser lists repos shared to any group email belongs to.
	GetGroupReposByUser(ctx context.Context, email string) ([]*Repo, error)
	// ListInnerPubRepos lists repos published to the whole (non-org) server.
	ListInnerPubRepos(ctx context.Context) ([]*Repo, error)

	// GetOrgOwnedRepoList is the org-scoped analogue of GetOwnedRepoList.
	GetOrgOwnedRepoList(ctx context.Context, orgID int64, email string) ([]*Repo, error)
	// GetOrgShareInRepoList is the org-scoped analogue of GetShareInRepoList.
	GetOrgShareInRepoList(ctx context.Context, orgID int64, email string) ([]*Repo, error)
	// GetOrgGroupReposByUser is the org-scoped analogue of GetGroupReposByUser.
	GetOrgGroupReposByUser(ctx context.Context, orgID int64, email string) ([]*Repo, error)
	// ListOrgInnerPubRepos lists repos published within orgID.
	ListOrgInnerPubRepos(ctx context.Context, orgID int64) ([]*Repo, error)

	// CheckPermissionByPath reports the access level ("rw", "r" or "") a
	// principal holds at path within repoID.
	CheckPermissionByPath(ctx context.Context, repoID, path, email string) (string, error)
	// CheckQuota reports whether delta more bytes fit within the quota of
	// repoID's owner.
	CheckQuota(ctx context.Context, repoID string, delta int64) error
	// IsValidFilename rejects names the store can't represent (path
	// separators, NUL bytes, "." / "..", trailing dot/space).
	IsValidFilename(name string) bool

	// GetFileIDByPath resolves path to the fs id of the file or directory at
	// the repo's current head, or daverr NotFound.
	GetFileIDByPath(ctx context.Context, repoID, path string) (string, error)
	// GetFilesLastModified returns the last-modified time of every direct
	// child of parentDir, as of the repo's head commit.
	GetFilesLastModified(ctx context.Context, repoID, parentDir string) ([]FileLastModified, error)

	// PostFile creates a new file at path/name from the spooled tmpPath.
	PostFile(ctx context.Context, repoID, parentDir, name, tmpPath, email string) error
	// PutFile overwrites the file at path with the spooled tmpPath.
	PutFile(ctx context.Context, repoID, path, tmpPath, email string) (newFileID string, err error)
	// PostDir creates an empty directory at parentDir/name.
	PostDir(ctx context.Context, repoID, parentDir, name, email string) error
	// DelFile removes the file or directory at path.
	DelFile(ctx context.Context, repoID, path, email string) error
	// MoveFile moves/renames srcPath to dstPath, optionally across repos.
	MoveFile(ctx context.Context, srcRepoID, srcPath, dstRepoID, dstPath, email string) error
	// CopyFile copies srcPath to dstPath, optionally across repos.
	CopyFile(ctx context.Context, srcRepoID, srcPath, dstRepoID, dstPath, email string) error
}

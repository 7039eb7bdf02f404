// Package resolver turns a WebDAV request path into a concrete repository,
// relative path and fs object, walking the repo's head commit tree through
// internal/seafobj. This is the read-side path resolver (C6); writes go
// through the external repo.RepoService RPC boundary instead (C12/C9),
// since mutating the tree also means creating a new commit.
package resolver

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Sesame-Disk/seafdav/internal/access"
	"github.com/Sesame-Disk/seafdav/internal/daverr"
	"github.com/Sesame-Disk/seafdav/internal/repo"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
)

// Resolved is the outcome of resolving a DAV path: which repo it names,
// the path relative to that repo's root, and (if it exists) the object at
// that path plus its parent directory.
type Resolved struct {
	Repo     *repo.Repo
	RelPath  string // always Clean()-ed, never a trailing slash
	Exists   bool
	IsDir    bool
	Dirent   *seafobj.Dirent // nil at the repo root
	ParentID string          // fs id of the containing directory; at the repo root, the root's own id
}

// Resolver resolves DAV paths against the set of repos svc exposes.
type Resolver struct {
	svc    repo.RepoService
	proj   *access.Projector
	objs   *seafobj.Store
}

// New creates a Resolver. objs must be backed by a blob.Backend shared with
// every repo svc can return (store_id scoping keeps them from colliding).
func New(svc repo.RepoService, proj *access.Projector, objs *seafobj.Store) *Resolver {
	return &Resolver{svc: svc, proj: proj, objs: objs}
}

// Resolve splits urlPath into its leading repo-display-name component and
// the remainder, looks up the repo among principal's visible set, then
// walks the tree to the remainder.
//
// Returns a daverr BadRequest error for a path containing a NUL byte or
// naming the DAV root itself (".." segments are folded away by path.Clean
// and cannot climb above the root), and a daverr NotFound error for an
// absent repo or path component.
func (r *Resolver) Resolve(ctx context.Context, principal repo.Principal, urlPath string) (*Resolved, error) {
	clean := path.Clean("/" + urlPath)
	if strings.Contains(clean, "\x00") {
		return nil, daverr.BadRequest("resolve", urlPath, fmt.Errorf("invalid path"))
	}

	trimmed := strings.TrimPrefix(clean, "/")
	if trimmed == "" || trimmed == "." {
		return nil, daverr.BadRequest("resolve", urlPath, fmt.Errorf("path names the DAV root, not a repo"))
	}

	parts := strings.SplitN(trimmed, "/", 2)
	repoName := parts[0]
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}

	entries, err := r.proj.VisibleRepos(ctx, principal)
	if err != nil {
		return nil, daverr.Internal("resolve", urlPath, err)
	}
	rp, ok := access.Resolve(entries, repoName)
	if !ok {
		return nil, daverr.NotFound("resolve", urlPath, fmt.Errorf("no such repo %q", repoName))
	}

	return r.resolveWithinRepo(rp, rest)
}

func (r *Resolver) resolveWithinRepo(rp *repo.Repo, relPath string) (*Resolved, error) {
	relPath = path.Clean("/" + relPath)
	if relPath == "/" {
		relPath = ""
	} else {
		relPath = strings.TrimPrefix(relPath, "/")
	}

	if rp.HeadCommitID == "" {
		return nil, daverr.NotFound("resolve", relPath, fmt.Errorf("repo %s has no commits", rp.RepoID))
	}
	commit, err := r.objs.ReadCommit(rp.StoreID, rp.HeadCommitID)
	if err != nil {
		return nil, daverr.Internal("resolve", relPath, err)
	}

	if relPath == "" {
		return &Resolved{Repo: rp, RelPath: "", Exists: true, IsDir: true, ParentID: commit.RootID}, nil
	}

	segments := strings.Split(relPath, "/")
	currentID := commit.RootID
	var dirent *seafobj.Dirent

	for i, seg := range segments {
		dir, err := r.objs.ReadDir(rp.StoreID, rp.Version, currentID)
		if err != nil {
			return nil, daverr.Internal("resolve", relPath, err)
		}
		d := dir.Lookup(seg)
		if d == nil {
			if i == len(segments)-1 {
				// Missing leaf is a legitimate "not found"; the parent is
				// still resolved, which write operations need to create it.
				return &Resolved{Repo: rp, RelPath: relPath, Exists: false, ParentID: currentID}, nil
			}
			return nil, daverr.NotFound("resolve", relPath, fmt.Errorf("no such directory %q", seg))
		}

		dirent = d
		if i == len(segments)-1 {
			break
		}
		if !d.IsDir {
			return nil, daverr.NotFound("resolve", relPath, fmt.Errorf("%q is not a directory", seg))
		}
		currentID = d.ID
	}

	parentID := currentID

	return &Resolved{
		Repo:     rp,
		RelPath:  relPath,
		Exists:   true,
		IsDir:    dirent.IsDir,
		Dirent:   dirent,
		ParentID: parentID,
	}, nil
}

// Package davfs adapts the resolver (reads) and repo.RepoService (writes)
// into a golang.org/x/net/webdav.FileSystem, the seam internal/server wires
// into webdav.Handler. Grounded on the shape of the teacher's
// internal/api/v2 file handlers (spool-then-commit on write, stream-by-block
// on read) but targets the stdlib DAV interface instead of a REST+JSON one.
package davfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"github.com/Sesame-Disk/seafdav/internal/access"
	"github.com/Sesame-Disk/seafdav/internal/blob"
	"github.com/Sesame-Disk/seafdav/internal/daverr"
	"github.com/Sesame-Disk/seafdav/internal/repo"
	"github.com/Sesame-Disk/seafdav/internal/resolver"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
)

// FileSystem implements webdav.FileSystem over a repo.RepoService-backed
// library tree: the root directory lists every repo a principal can see
// (internal/access), everything below a repo name resolves through
// internal/resolver, and every mutation is delegated to repo.RepoService so
// the tree rebuild and commit creation happen in one place.
type FileSystem struct {
	resolver       *resolver.Resolver
	proj           *access.Projector
	svc            repo.RepoService
	objs           *seafobj.Store
	blocks         blob.Backend
	spillThreshold int64
	readonly       bool
}

// New creates a FileSystem. spillThreshold is the in-memory byte ceiling a
// PUT/POST body may reach before SpillBuffer moves it to a temp file.
// readonly rejects every write operation regardless of the requesting
// principal's own permission level (spec §4.8 gate 1 / §4.9 / §7).
func New(res *resolver.Resolver, proj *access.Projector, svc repo.RepoService, objs *seafobj.Store, blocks blob.Backend, spillThreshold int64, readonly bool) *FileSystem {
	return &FileSystem{resolver: res, proj: proj, svc: svc, objs: objs, blocks: blocks, spillThreshold: spillThreshold, readonly: readonly}
}

var (
	_ webdav.FileSystem = (*FileSystem)(nil)
	_ webdav.File       = (*File)(nil)
)

type principalKey struct{}

// WithPrincipal attaches the authenticated principal to ctx, for
// internal/server's auth middleware to call before handing the request to
// webdav.Handler.
func WithPrincipal(ctx context.Context, p repo.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal WithPrincipal attached, returning the
// zero value (anonymous, no org) if none was set.
func PrincipalFrom(ctx context.Context) repo.Principal {
	p, _ := ctx.Value(principalKey{}).(repo.Principal)
	return p
}

// Mkdir creates an empty directory. Repositories themselves are never
// created over WebDAV (spec's repo lifecycle is out of this gateway's
// scope), so name must have at least one path component below the repo.
func (fsys *FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	principal := PrincipalFrom(ctx)
	clean := path.Clean("/" + name)
	if clean == "/" {
		return daverr.Conflict("mkdir", name, fmt.Errorf("cannot create the DAV root"))
	}
	trimmed := strings.TrimPrefix(clean, "/")
	if !strings.Contains(trimmed, "/") {
		return daverr.Conflict("mkdir", name, fmt.Errorf("repositories are not created over WebDAV"))
	}

	parent, err := fsys.resolver.Resolve(ctx, principal, path.Dir(clean))
	if err != nil {
		return err
	}
	if !parent.Exists || !parent.IsDir {
		return daverr.Conflict("mkdir", name, fmt.Errorf("parent directory does not exist"))
	}

	if err := fsys.requireWrite(ctx, principal, parent.Repo.RepoID, parent.RelPath, "mkdir", name); err != nil {
		return err
	}

	base := path.Base(clean)
	if !fsys.svc.IsValidFilename(base) {
		return daverr.BadRequest("mkdir", name, fmt.Errorf("invalid directory name %q", base))
	}
	return fsys.svc.PostDir(ctx, parent.Repo.RepoID, parent.RelPath, base, principal.Email)
}

// OpenFile resolves name for reading, or (when flag carries O_CREATE/
// O_WRONLY/O_RDWR) prepares a spool for a subsequent write on Close.
func (fsys *FileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	principal := PrincipalFrom(ctx)
	clean := path.Clean("/" + name)
	wantsWrite := flag&(os.O_WRONLY|os.O_RDWR) != 0

	if clean == "/" {
		if wantsWrite {
			return nil, daverr.Forbidden("open_file", name, fmt.Errorf("cannot write to the DAV root"))
		}
		return fsys.openRoot(ctx, principal)
	}

	resolved, err := fsys.resolver.Resolve(ctx, principal, clean)
	if err != nil {
		return nil, err
	}

	if !resolved.Exists {
		if !wantsWrite && flag&os.O_CREATE == 0 {
			return nil, daverr.NotFound("open_file", name, fmt.Errorf("no such file or directory"))
		}
		return fsys.openForWrite(ctx, principal, resolved, true)
	}

	if resolved.IsDir {
		if wantsWrite {
			return nil, daverr.Forbidden("open_file", name, fmt.Errorf("cannot open a directory for writing"))
		}
		return fsys.openDir(ctx, resolved)
	}

	if wantsWrite {
		return fsys.openForWrite(ctx, principal, resolved, false)
	}
	return fsys.openForRead(resolved)
}

// RemoveAll deletes the file or directory at name, and everything under it.
// Like os.RemoveAll, a missing path is not an error: webdav.Handler calls
// RemoveAll on a MOVE's destination before renaming, and only tolerates
// errors os.IsNotExist recognizes, which a daverr.Error never is.
func (fsys *FileSystem) RemoveAll(ctx context.Context, name string) error {
	principal := PrincipalFrom(ctx)
	resolved, err := fsys.resolver.Resolve(ctx, principal, path.Clean("/"+name))
	if err != nil {
		return err
	}
	if !resolved.Exists {
		return nil
	}
	if err := fsys.requireWrite(ctx, principal, resolved.Repo.RepoID, resolved.RelPath, "remove_all", name); err != nil {
		return err
	}
	return fsys.svc.DelFile(ctx, resolved.Repo.RepoID, resolved.RelPath, principal.Email)
}

// Rename moves oldName to newName, across repos when their resolved repo
// IDs differ. Both endpoints must already resolve to a visible repo; Rename
// itself never overwrites: an existing destination leaf gives daverr
// Conflict.
func (fsys *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	principal := PrincipalFrom(ctx)

	src, err := fsys.resolver.Resolve(ctx, principal, path.Clean("/"+oldName))
	if err != nil {
		return err
	}
	if !src.Exists {
		return daverr.NotFound("rename", oldName, fmt.Errorf("no such file or directory"))
	}

	dst, err := fsys.resolver.Resolve(ctx, principal, path.Clean("/"+newName))
	if err != nil {
		return err
	}
	if dst.Exists {
		return daverr.Conflict("rename", newName, fmt.Errorf("destination already exists"))
	}

	if err := fsys.requireWrite(ctx, principal, src.Repo.RepoID, src.RelPath, "rename", oldName); err != nil {
		return err
	}
	if err := fsys.requireWrite(ctx, principal, dst.Repo.RepoID, path.Dir(dst.RelPath), "rename", newName); err != nil {
		return err
	}

	return fsys.svc.MoveFile(ctx, src.Repo.RepoID, src.RelPath, dst.Repo.RepoID, dst.RelPath, principal.Email)
}

// Stat resolves name without opening it.
func (fsys *FileSystem) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	principal := PrincipalFrom(ctx)
	clean := path.Clean("/" + name)
	if clean == "/" {
		return &FileInfo{name: "/", isDir: true, mtime: time.Now()}, nil
	}

	resolved, err := fsys.resolver.Resolve(ctx, principal, clean)
	if err != nil {
		return nil, err
	}
	if !resolved.Exists {
		return nil, daverr.NotFound("stat", name, fmt.Errorf("no such file or directory"))
	}
	return resolvedToFileInfo(resolved), nil
}

func resolvedToFileInfo(r *resolver.Resolved) *FileInfo {
	if r.Dirent == nil {
		return &FileInfo{name: r.Repo.Name, isDir: true, mtime: r.Repo.MTime}
	}
	mtime := r.Repo.MTime
	if r.Dirent.MTime >= 0 {
		mtime = time.Unix(r.Dirent.MTime, 0)
	}
	return &FileInfo{name: r.Dirent.Name, size: r.Dirent.Size, isDir: r.Dirent.IsDir, mtime: mtime}
}

// requireWrite fails with daverr.Forbidden unless the gateway is writable
// and principal holds "rw" at relPath within repoID. The readonly gate is
// checked first, ahead of the permission lookup, per spec §4.8 gate 1.
func (fsys *FileSystem) requireWrite(ctx context.Context, principal repo.Principal, repoID, relPath, op, name string) error {
	if fsys.readonly {
		return daverr.Forbidden(op, name, fmt.Errorf("gateway is read-only"))
	}

	level, err := fsys.svc.CheckPermissionByPath(ctx, repoID, relPath, principal.Email)
	if err != nil {
		return err
	}
	if level != "rw" {
		return daverr.Forbidden(op, name, fmt.Errorf("insufficient permission"))
	}
	return nil
}

func (fsys *FileSystem) openRoot(ctx context.Context, principal repo.Principal) (webdav.File, error) {
	entries, err := fsys.proj.VisibleRepos(ctx, principal)
	if err != nil {
		return nil, daverr.Internal("open_file", "/", err)
	}
	children := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		children = append(children, &FileInfo{name: e.Name, isDir: true, mtime: e.Repo.MTime})
	}
	return &File{
		fs:       fsys,
		name:     "/",
		mode:     modeDir,
		children: children,
		selfInfo: &FileInfo{name: "/", isDir: true, mtime: time.Now()},
	}, nil
}

func (fsys *FileSystem) openDir(ctx context.Context, resolved *resolver.Resolved) (webdav.File, error) {
	selfID := resolved.ParentID
	if resolved.Dirent != nil {
		selfID = resolved.Dirent.ID
	}

	dir, err := fsys.objs.ReadDir(resolved.Repo.StoreID, resolved.Repo.Version, selfID)
	if err != nil {
		return nil, daverr.Internal("open_file", resolved.RelPath, err)
	}

	lastMod, err := fsys.svc.GetFilesLastModified(ctx, resolved.Repo.RepoID, resolved.RelPath)
	if err != nil {
		return nil, err
	}
	mtimeByName := make(map[string]int64, len(lastMod))
	for _, lm := range lastMod {
		mtimeByName[path.Base(lm.Path)] = lm.MTime
	}

	children := make([]os.FileInfo, 0, len(dir.Dirents))
	for _, d := range dir.Dirents {
		mtime := d.MTime
		if mtime < 0 {
			if m, ok := mtimeByName[d.Name]; ok {
				mtime = m
			} else {
				mtime = resolved.Repo.MTime.Unix()
			}
		}
		children = append(children, &FileInfo{name: d.Name, size: d.Size, isDir: d.IsDir, mtime: time.Unix(mtime, 0)})
	}

	return &File{fs: fsys, name: resolved.RelPath, mode: modeDir, children: children, selfInfo: resolvedToFileInfo(resolved)}, nil
}

func (fsys *FileSystem) openForRead(resolved *resolver.Resolved) (webdav.File, error) {
	f, err := fsys.objs.ReadFile(resolved.Repo.StoreID, resolved.Repo.Version, resolved.Dirent.ID)
	if err != nil {
		return nil, daverr.Internal("open_file", resolved.RelPath, err)
	}
	return &File{
		fs:       fsys,
		name:     resolved.RelPath,
		mode:     modeRead,
		storeID:  resolved.Repo.StoreID,
		blockIDs: f.BlockIDs,
		size:     f.Size,
		selfInfo: resolvedToFileInfo(resolved),
	}, nil
}

func (fsys *FileSystem) openForWrite(ctx context.Context, principal repo.Principal, resolved *resolver.Resolved, create bool) (webdav.File, error) {
	parentPath := path.Dir(resolved.RelPath)
	if err := fsys.requireWrite(ctx, principal, resolved.Repo.RepoID, parentPath, "open_file", resolved.RelPath); err != nil {
		return nil, err
	}

	return &File{
		fs:        fsys,
		name:      resolved.RelPath,
		mode:      modeWrite,
		ctx:       ctx,
		repoID:    resolved.Repo.RepoID,
		reqPath:   resolved.RelPath,
		principal: principal,
		isCreate:  create,
		spill:     NewSpillBuffer(fsys.spillThreshold),
	}, nil
}

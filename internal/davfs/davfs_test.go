package davfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sesame-Disk/seafdav/internal/access"
	"github.com/Sesame-Disk/seafdav/internal/blob"
	"github.com/Sesame-Disk/seafdav/internal/daverr"
	"github.com/Sesame-Disk/seafdav/internal/repo"
	"github.com/Sesame-Disk/seafdav/internal/resolver"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
)

// memBackend is the same minimal in-process blob.Backend used by the
// resolver/seafobj tests, duplicated here to keep this package's tests
// self-contained.
type memBackend struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{objs: make(map[string][]byte)} }

func memKey(kind blob.Kind, storeID, objID string) string { return string(kind) + "/" + storeID + "/" + objID }

func (m *memBackend) Get(kind blob.Kind, storeID, objID string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[memKey(kind, storeID, objID)]
	if !ok {
		return nil, &blob.NotFoundError{Kind: kind, StoreID: storeID, ObjID: objID}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Put(kind blob.Kind, storeID, objID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[memKey(kind, storeID, objID)] = data
	return nil
}

func (m *memBackend) Exists(kind blob.Kind, storeID, objID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[memKey(kind, storeID, objID)]
	return ok, nil
}

// fakeService is a minimal repo.RepoService exposing a single fixed repo
// plus recorded mutation calls, enough for FileSystem's handlers to exercise
// every branch without a real Cassandra session.
type fakeService struct {
	repo.RepoService
	repo       *repo.Repo
	permission string // returned by CheckPermissionByPath for every path

	postFileCalls int
	putFileCalls  int
	postDirCalls  int
	delFileCalls  int
	moveCalls     int
}

func (f *fakeService) GetOwnedRepoList(ctx context.Context, email string) ([]*repo.Repo, error) {
	return []*repo.Repo{f.repo}, nil
}
func (f *fakeService) GetShareInRepoList(ctx context.Context, email string) ([]*repo.Repo, error) {
	return nil, nil
}
func (f *fakeService) GetGroupReposByUser(ctx context.Context, email string) ([]*repo.Repo, error) {
	return nil, nil
}
func (f *fakeService) ListInnerPubRepos(ctx context.Context) ([]*repo.Repo, error) { return nil, nil }

func (f *fakeService) CheckPermissionByPath(ctx context.Context, repoID, path, email string) (string, error) {
	return f.permission, nil
}

func (f *fakeService) IsValidFilename(name string) bool { return name != "" && name != "." }

func (f *fakeService) GetFilesLastModified(ctx context.Context, repoID, parentDir string) ([]repo.FileLastModified, error) {
	return nil, nil
}

func (f *fakeService) PostFile(ctx context.Context, repoID, parentDir, name, tmpPath, email string) error {
	f.postFileCalls++
	if _, err := os.Stat(tmpPath); err != nil {
		return err
	}
	return nil
}

func (f *fakeService) PutFile(ctx context.Context, repoID, path, tmpPath, email string) (string, error) {
	f.putFileCalls++
	if _, err := os.Stat(tmpPath); err != nil {
		return "", err
	}
	return "newfileid", nil
}

func (f *fakeService) PostDir(ctx context.Context, repoID, parentDir, name, email string) error {
	f.postDirCalls++
	return nil
}

func (f *fakeService) DelFile(ctx context.Context, repoID, path, email string) error {
	f.delFileCalls++
	return nil
}

func (f *fakeService) MoveFile(ctx context.Context, srcRepoID, srcPath, dstRepoID, dstPath, email string) error {
	f.moveCalls++
	return nil
}

// buildFixture wires a real resolver.Resolver/access.Projector/seafobj.Store
// over an in-memory backend, the same shape resolver_test.go builds, plus
// the davfs.FileSystem under test on top.
func buildFixture(t *testing.T, permission string) (*FileSystem, *fakeService, *seafobj.Store) {
	return buildFixtureReadonly(t, permission, false)
}

func buildFixtureReadonly(t *testing.T, permission string, readonly bool) (*FileSystem, *fakeService, *seafobj.Store) {
	t.Helper()
	backend := newMemBackend()
	objs := seafobj.NewStore(backend, 1)

	fileID, err := objs.WriteFile("repo1", 5, []string{"deadbeef"})
	assert.NoError(t, err)

	rootID, err := objs.WriteDir("repo1", []seafobj.Dirent{
		{Name: "doc.txt", IsDir: false, ID: fileID, Size: 5},
	})
	assert.NoError(t, err)

	commit := &seafobj.Commit{RootID: rootID, RepoID: "repo1", CreatorName: "alice@example.com"}
	commitID, err := objs.WriteCommit("repo1", commit)
	assert.NoError(t, err)

	r := &repo.Repo{RepoID: "repo1", Name: "docs", StoreID: "repo1", Version: 1, HeadCommitID: commitID}
	svc := &fakeService{repo: r, permission: permission}
	proj := access.NewProjector(svc)
	res := resolver.New(svc, proj, objs)

	fsys := New(res, proj, svc, objs, backend, 0, readonly)
	return fsys, svc, objs
}

func ctxWithAlice() context.Context {
	return WithPrincipal(context.Background(), repo.Principal{Email: "alice@example.com"})
}

func TestStat_Root(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	info, err := fsys.Stat(ctxWithAlice(), "/")
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStat_ExistingFile(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	info, err := fsys.Stat(ctxWithAlice(), "/docs/doc.txt")
	assert.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, int64(5), info.Size())
}

func TestStat_MissingIsNotFound(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	_, err := fsys.Stat(ctxWithAlice(), "/docs/nosuch.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindNotFound, daverr.KindOf(err))
}

func TestOpenFile_RootListsVisibleRepos(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	f, err := fsys.OpenFile(ctxWithAlice(), "/", os.O_RDONLY, 0)
	assert.NoError(t, err)
	defer f.Close()

	entries, err := f.Readdir(-1)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].Name())
}

func TestOpenFile_ReadExistingFile(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	f, err := fsys.OpenFile(ctxWithAlice(), "/docs/doc.txt", os.O_RDONLY, 0)
	assert.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestOpenFile_WriteRequiresRWPermission(t *testing.T) {
	fsys, _, _ := buildFixture(t, "r")
	_, err := fsys.OpenFile(ctxWithAlice(), "/docs/new.txt", os.O_WRONLY|os.O_CREATE, 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
}

func TestOpenFile_CreateAndWriteFinalizesViaPostFile(t *testing.T) {
	fsys, svc, _ := buildFixture(t, "rw")
	f, err := fsys.OpenFile(ctxWithAlice(), "/docs/new.txt", os.O_WRONLY|os.O_CREATE, 0)
	assert.NoError(t, err)

	_, err = f.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.NoError(t, f.Close())
	assert.Equal(t, 1, svc.postFileCalls)
	assert.Equal(t, 0, svc.putFileCalls)
}

func TestOpenFile_OverwriteFinalizesViaPutFile(t *testing.T) {
	fsys, svc, _ := buildFixture(t, "rw")
	f, err := fsys.OpenFile(ctxWithAlice(), "/docs/doc.txt", os.O_WRONLY, 0)
	assert.NoError(t, err)

	_, err = f.Write([]byte("overwritten"))
	assert.NoError(t, err)
	assert.NoError(t, f.Close())
	assert.Equal(t, 1, svc.putFileCalls)
	assert.Equal(t, 0, svc.postFileCalls)
}

func TestOpenFile_CannotOpenDirectoryForWriting(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	_, err := fsys.OpenFile(ctxWithAlice(), "/docs", os.O_WRONLY, 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
}

func TestMkdir_RejectsRoot(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	err := fsys.Mkdir(ctxWithAlice(), "/", 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindConflict, daverr.KindOf(err))
}

func TestMkdir_RejectsRepoCreation(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	err := fsys.Mkdir(ctxWithAlice(), "/newrepo", 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindConflict, daverr.KindOf(err))
}

func TestMkdir_CreatesUnderExistingDir(t *testing.T) {
	fsys, svc, _ := buildFixture(t, "rw")
	err := fsys.Mkdir(ctxWithAlice(), "/docs/sub", 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, svc.postDirCalls)
}

func TestMkdir_RequiresRWPermission(t *testing.T) {
	fsys, _, _ := buildFixture(t, "r")
	err := fsys.Mkdir(ctxWithAlice(), "/docs/sub", 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
}

func TestRemoveAll_DeletesExisting(t *testing.T) {
	fsys, svc, _ := buildFixture(t, "rw")
	err := fsys.RemoveAll(ctxWithAlice(), "/docs/doc.txt")
	assert.NoError(t, err)
	assert.Equal(t, 1, svc.delFileCalls)
}

func TestRemoveAll_MissingIsNilLikeOsRemoveAll(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	err := fsys.RemoveAll(ctxWithAlice(), "/docs/nosuch.txt")
	assert.NoError(t, err)
}

func TestMkdir_ReadonlyGatewayRejectsWrite(t *testing.T) {
	fsys, svc, _ := buildFixtureReadonly(t, "rw", true)
	err := fsys.Mkdir(ctxWithAlice(), "/docs/sub", 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
	assert.Equal(t, 0, svc.postDirCalls)
}

func TestOpenFile_ReadonlyGatewayRejectsWrite(t *testing.T) {
	fsys, _, _ := buildFixtureReadonly(t, "rw", true)
	_, err := fsys.OpenFile(ctxWithAlice(), "/docs/new.txt", os.O_WRONLY|os.O_CREATE, 0)
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
}

func TestRemoveAll_ReadonlyGatewayRejectsWrite(t *testing.T) {
	fsys, svc, _ := buildFixtureReadonly(t, "rw", true)
	err := fsys.RemoveAll(ctxWithAlice(), "/docs/doc.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
	assert.Equal(t, 0, svc.delFileCalls)
}

func TestRename_ReadonlyGatewayRejectsWrite(t *testing.T) {
	fsys, svc, _ := buildFixtureReadonly(t, "rw", true)
	err := fsys.Rename(ctxWithAlice(), "/docs/doc.txt", "/docs/renamed.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindForbidden, daverr.KindOf(err))
	assert.Equal(t, 0, svc.moveCalls)
}

func TestRename_MovesToNewDestination(t *testing.T) {
	fsys, svc, _ := buildFixture(t, "rw")
	err := fsys.Rename(ctxWithAlice(), "/docs/doc.txt", "/docs/renamed.txt")
	assert.NoError(t, err)
	assert.Equal(t, 1, svc.moveCalls)
}

func TestRename_DestinationAlreadyExistsIsConflict(t *testing.T) {
	fsys, _, objs := buildFixture(t, "rw")
	_ = objs // keep objs referenced for fixture symmetry with other tests
	otherID, err := objs.WriteFile("repo1", 5, []string{"deadbeef"})
	assert.NoError(t, err)
	_ = otherID

	err = fsys.Rename(ctxWithAlice(), "/docs/doc.txt", "/docs/doc.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindConflict, daverr.KindOf(err))
}

func TestRename_MissingSourceIsNotFound(t *testing.T) {
	fsys, _, _ := buildFixture(t, "rw")
	err := fsys.Rename(ctxWithAlice(), "/docs/nosuch.txt", "/docs/dst.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindNotFound, daverr.KindOf(err))
}

func TestFile_ReaddirPaginatesAndSorts(t *testing.T) {
	f := &File{
		mode: modeDir,
		children: []os.FileInfo{
			&FileInfo{name: "b.txt"},
			&FileInfo{name: "a.txt"},
			&FileInfo{name: "c.txt"},
		},
	}

	first, err := f.Readdir(2)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, namesOf(first))

	rest, err := f.Readdir(2)
	assert.NoError(t, err)
	assert.Equal(t, []string{"c.txt"}, namesOf(rest))

	_, err = f.Readdir(1)
	assert.Equal(t, io.EOF, err)
}

func namesOf(infos []os.FileInfo) []string {
	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name()
	}
	return names
}

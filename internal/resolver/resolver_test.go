package resolver

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sesame-Disk/seafdav/internal/access"
	"github.com/Sesame-Disk/seafdav/internal/blob"
	"github.com/Sesame-Disk/seafdav/internal/daverr"
	"github.com/Sesame-Disk/seafdav/internal/repo"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
)

// memBackend is the same minimal in-process blob.Backend used by the
// seafobj tests, duplicated here to keep this package's tests
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

// fakeService is a minimal repo.RepoService exposing a single fixed repo,
// just enough for access.Projector/resolver.Resolver to walk.
type fakeService struct {
	repo.RepoService
	repo *repo.Repo
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

func buildFixture(t *testing.T) (*Resolver, *repo.Repo, *seafobj.Store) {
	t.Helper()
	backend := newMemBackend()
	objs := seafobj.NewStore(backend, 1)

	fileID, err := objs.WriteFile("repo1", 5, []string{"deadbeef"})
	assert.NoError(t, err)

	subDirID, err := objs.WriteDir("repo1", []seafobj.Dirent{
		{Name: "nested.txt", IsDir: false, ID: fileID, Size: 5},
	})
	assert.NoError(t, err)

	rootID, err := objs.WriteDir("repo1", []seafobj.Dirent{
		{Name: "doc.txt", IsDir: false, ID: fileID, Size: 5},
		{Name: "sub", IsDir: true, ID: subDirID},
	})
	assert.NoError(t, err)

	commit := &seafobj.Commit{RootID: rootID, RepoID: "repo1", CreatorName: "alice@example.com"}
	commitID, err := objs.WriteCommit("repo1", commit)
	assert.NoError(t, err)

	r := &repo.Repo{RepoID: "repo1", Name: "docs", StoreID: "repo1", Version: 1, HeadCommitID: commitID}
	svc := &fakeService{repo: r}
	proj := access.NewProjector(svc)
	return New(svc, proj, objs), r, objs
}

func TestResolve_RootPathIsBadRequest(t *testing.T) {
	res, _, _ := buildFixture(t)
	_, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "/")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindBadRequest, daverr.KindOf(err))
}

func TestResolve_NullByteIsBadRequest(t *testing.T) {
	res, _, _ := buildFixture(t)
	_, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/a\x00b")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindBadRequest, daverr.KindOf(err))
}

func TestResolve_MissingRepoIsNotFound(t *testing.T) {
	res, _, _ := buildFixture(t)
	_, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "nosuchrepo/file.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindNotFound, daverr.KindOf(err))
}

func TestResolve_MissingIntermediateSegmentIsNotFound(t *testing.T) {
	res, _, _ := buildFixture(t)
	_, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/nosuch/file.txt")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindNotFound, daverr.KindOf(err))
}

func TestResolve_MissingLeafReturnsNotExistsForWriteTargets(t *testing.T) {
	res, _, _ := buildFixture(t)
	got, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/new-file.txt")
	assert.NoError(t, err)
	assert.False(t, got.Exists)
	assert.Equal(t, "new-file.txt", got.RelPath)
}

func TestResolve_NonDirectoryIntermediateIsNotFound(t *testing.T) {
	res, _, _ := buildFixture(t)
	_, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/doc.txt/nested")
	assert.Error(t, err)
	assert.Equal(t, daverr.KindNotFound, daverr.KindOf(err))
}

func TestResolve_ExistingFileAndNestedDirectory(t *testing.T) {
	res, _, _ := buildFixture(t)

	got, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/doc.txt")
	assert.NoError(t, err)
	assert.True(t, got.Exists)
	assert.False(t, got.IsDir)
	assert.Equal(t, "doc.txt", got.RelPath)

	got, err = res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs/sub/nested.txt")
	assert.NoError(t, err)
	assert.True(t, got.Exists)
	assert.False(t, got.IsDir)
	assert.Equal(t, "sub/nested.txt", got.RelPath)
}

func TestResolve_RepoRootHasNoTrailingSlash(t *testing.T) {
	res, _, _ := buildFixture(t)
	got, err := res.Resolve(context.Background(), repo.Principal{Email: "alice@example.com"}, "docs")
	assert.NoError(t, err)
	assert.True(t, got.Exists)
	assert.True(t, got.IsDir)
	assert.Equal(t, "", got.RelPath)
}

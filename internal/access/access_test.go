package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sesame-Disk/seafdav/internal/repo"
)

// fakeService is a minimal repo.RepoService backed by plain slices, just
// enough to exercise the projector's aggregation/dedup/naming logic without
// a real reposvc.Service.
type fakeService struct {
	repo.RepoService
	owned, shareIn, group, pub             []*repo.Repo
	orgOwned, orgShareIn, orgGroup, orgPub []*repo.Repo
}

func (f *fakeService) GetOwnedRepoList(ctx context.Context, email string) ([]*repo.Repo, error) {
	return f.owned, nil
}
func (f *fakeService) GetShareInRepoList(ctx context.Context, email string) ([]*repo.Repo, error) {
	return f.shareIn, nil
}
func (f *fakeService) GetGroupReposByUser(ctx context.Context, email string) ([]*repo.Repo, error) {
	return f.group, nil
}
func (f *fakeService) ListInnerPubRepos(ctx context.Context) ([]*repo.Repo, error) {
	return f.pub, nil
}
func (f *fakeService) GetOrgOwnedRepoList(ctx context.Context, orgID int64, email string) ([]*repo.Repo, error) {
	return f.orgOwned, nil
}
func (f *fakeService) GetOrgShareInRepoList(ctx context.Context, orgID int64, email string) ([]*repo.Repo, error) {
	return f.orgShareIn, nil
}
func (f *fakeService) GetOrgGroupReposByUser(ctx context.Context, orgID int64, email string) ([]*repo.Repo, error) {
	return f.orgGroup, nil
}
func (f *fakeService) ListOrgInnerPubRepos(ctx context.Context, orgID int64) ([]*repo.Repo, error) {
	return f.orgPub, nil
}

func TestVisibleRepos_DedupsAndFiltersEncrypted(t *testing.T) {
	r1 := &repo.Repo{RepoID: "repo1", Name: "docs"}
	r2 := &repo.Repo{RepoID: "repo2", Name: "photos", Encrypted: true}
	svc := &fakeService{owned: []*repo.Repo{r1}, shareIn: []*repo.Repo{r1, r2}, pub: []*repo.Repo{r2}}
	p := NewProjector(svc)

	entries, err := p.VisibleRepos(context.Background(), repo.Principal{Email: "alice@example.com"})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].Name)
}

func TestVisibleRepos_GuestSuppressesPublicRepos(t *testing.T) {
	pub := &repo.Repo{RepoID: "repo1", Name: "public-stuff"}
	svc := &fakeService{pub: []*repo.Repo{pub}}
	p := NewProjector(svc)

	entries, err := p.VisibleRepos(context.Background(), repo.Principal{Email: "guest@example.com", IsGuest: true})
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVisibleRepos_OrgScopedBranch(t *testing.T) {
	owned := &repo.Repo{RepoID: "repo1", Name: "org-docs"}
	svc := &fakeService{orgOwned: []*repo.Repo{owned}}
	p := NewProjector(svc)

	entries, err := p.VisibleRepos(context.Background(), repo.Principal{Email: "bob@example.com", OrgID: 7})
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "org-docs", entries[0].Name)
}

func TestProjectNames_CollisionSuffixesByRepoIDAscending(t *testing.T) {
	svc := &fakeService{}
	p := NewProjector(svc)

	r1 := &repo.Repo{RepoID: "bbbbbb0000000000000000000000000000000000", Name: "docs"}
	r2 := &repo.Repo{RepoID: "aaaaaa0000000000000000000000000000000000", Name: "docs"}
	entries := p.projectNames([]*repo.Repo{r1, r2})

	assert.Len(t, entries, 2)
	names := map[string]string{}
	for _, e := range entries {
		names[e.Repo.RepoID] = e.Name
	}
	assert.Equal(t, "docs-aaaaaa", names[r2.RepoID])
	assert.Equal(t, "docs-bbbbbb", names[r1.RepoID])
}

func TestProjectNames_ShowRepoIDForcesSuffixEvenWithoutCollision(t *testing.T) {
	svc := &fakeService{}
	p := &Projector{svc: svc, ShowRepoID: true}

	r1 := &repo.Repo{RepoID: "cccccc0000000000000000000000000000000000", Name: "solo"}
	entries := p.projectNames([]*repo.Repo{r1})

	assert.Len(t, entries, 1)
	assert.Equal(t, "solo-cccccc", entries[0].Name)
}

func TestResolve_PrefersExactMatch(t *testing.T) {
	entries := []Entry{
		{Repo: &repo.Repo{RepoID: "repo1"}, Name: "docs"},
		{Repo: &repo.Repo{RepoID: "repo2"}, Name: "docs-ababab"},
	}
	r, ok := Resolve(entries, "docs")
	assert.True(t, ok)
	assert.Equal(t, "repo1", r.RepoID)

	r, ok = Resolve(entries, "docs-ababab")
	assert.True(t, ok)
	assert.Equal(t, "repo2", r.RepoID)

	_, ok = Resolve(entries, "missing")
	assert.False(t, ok)
}

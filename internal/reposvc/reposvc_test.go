package reposvc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sesame-Disk/seafdav/internal/repo"
	"github.com/Sesame-Disk/seafdav/internal/seafobj"
)

func TestIsValidFilename(t *testing.T) {
	svc := &Service{}
	valid := []string{"doc.txt", "a", "sub.dir.name", "spaced name.txt"}
	invalid := []string{"", ".", "..", "a/b", "trailing.", "trailing ", "has\x00null"}

	for _, name := range valid {
		assert.True(t, svc.IsValidFilename(name), "expected %q to be valid", name)
	}
	for _, name := range invalid {
		assert.False(t, svc.IsValidFilename(name), "expected %q to be invalid", name)
	}
}

func TestIsValidFilename_RejectsOverlongNames(t *testing.T) {
	svc := &Service{}
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, svc.IsValidFilename(string(long)))
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Nil(t, splitPath("/"))
	assert.Nil(t, splitPath("."))
	assert.Equal(t, []string{"a"}, splitPath("a"))
	assert.Equal(t, []string{"a", "b"}, splitPath("/a/b/"))
	assert.Equal(t, []string{"a", "b"}, splitPath("a/b"))
}

func TestFindDirent(t *testing.T) {
	entries := []seafobj.Dirent{{Name: "a.txt"}, {Name: "b.txt"}}
	assert.Equal(t, "a.txt", findDirent(entries, "a.txt").Name)
	assert.Nil(t, findDirent(entries, "nosuch.txt"))
}

func TestRemoveDirent(t *testing.T) {
	entries := []seafobj.Dirent{{Name: "a.txt"}, {Name: "b.txt"}, {Name: "c.txt"}}
	out := removeDirent(entries, "b.txt")
	assert.Len(t, out, 2)
	assert.Nil(t, findDirent(out, "b.txt"))
}

func TestRemoveDirent_NameNotPresentIsNoop(t *testing.T) {
	entries := []seafobj.Dirent{{Name: "a.txt"}}
	out := removeDirent(entries, "nosuch.txt")
	assert.Equal(t, entries, out)
}

func TestUpsertDirent_ReplacesExisting(t *testing.T) {
	entries := []seafobj.Dirent{{Name: "a.txt", Size: 1}, {Name: "b.txt", Size: 2}}
	out := upsertDirent(entries, seafobj.Dirent{Name: "a.txt", Size: 99})
	assert.Len(t, out, 2)
	assert.Equal(t, int64(99), findDirent(out, "a.txt").Size)
}

func TestUpsertDirent_AppendsNew(t *testing.T) {
	entries := []seafobj.Dirent{{Name: "a.txt"}}
	out := upsertDirent(entries, seafobj.Dirent{Name: "new.txt"})
	assert.Len(t, out, 2)
	assert.NotNil(t, findDirent(out, "new.txt"))
}

func TestFilterByOrg(t *testing.T) {
	repos := []*repo.Repo{
		{RepoID: "1", OrgID: 0},
		{RepoID: "2", OrgID: 7},
		{RepoID: "3", OrgID: 7},
	}
	out := filterByOrg(repos, 7)
	assert.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, int64(7), r.OrgID)
	}
}

func TestFilterByOrg_DefaultOrgZero(t *testing.T) {
	repos := []*repo.Repo{{RepoID: "1", OrgID: 0}, {RepoID: "2", OrgID: 7}}
	out := filterByOrg(repos, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, "1", out[0].RepoID)
}

// Package access computes the set of repositories a principal may see at
// the WebDAV root and projects each onto a unique display name, per spec §4.4
// and §4.9. Grounded on the aggregation-then-filter shape of the teacher's
// internal/api/v2/libraries.go repo-listing handlers, generalized from "list
// repos for an API response" to "list repos for a directory listing".
package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/Sesame-Disk/seafdav/internal/repo"
)

// Projector computes the visible-repo set and display names for a
// principal, using the RepoService RPC surface (spec §6).
type Projector struct {
	svc repo.RepoService
	// ShowRepoID forces every name into the suffixed "name-xxxxxx" form
	// (spec §4.9's show_repo_id provider flag), instead of only suffixing
	// on collision.
	ShowRepoID bool
}

// NewProjector creates a Projector over svc.
func NewProjector(svc repo.RepoService) *Projector {
	return &Projector{svc: svc}
}

// Entry is one projected root-level directory entry: a repo paired with the
// name it is exposed under.
type Entry struct {
	Repo *repo.Repo
	Name string
}

// VisibleRepos returns the union of every repo principal may access:
// owned, shared-in, group-shared and (for non-guests) published, scoped to
// principal.OrgID when multi-tenancy is enabled. Encrypted repos are
// dropped since client-side encryption is a declared Non-goal.
func (p *Projector) VisibleRepos(ctx context.Context, principal repo.Principal) ([]Entry, error) {
	var lists [][]*repo.Repo
	var err error

	if principal.OrgID != 0 {
		lists, err = p.fetchOrgLists(ctx, principal)
	} else {
		lists, err = p.fetchDefaultLists(ctx, principal)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*repo.Repo)
	var order []string
	for _, list := range lists {
		for _, r := range list {
			if r.Encrypted {
				continue
			}
			if _, ok := seen[r.RepoID]; !ok {
				order = append(order, r.RepoID)
			}
			seen[r.RepoID] = r
		}
	}

	repos := make([]*repo.Repo, 0, len(order))
	for _, id := range order {
		repos = append(repos, seen[id])
	}

	return p.projectNames(repos), nil
}

func (p *Projector) fetchDefaultLists(ctx context.Context, principal repo.Principal) ([][]*repo.Repo, error) {
	owned, err := p.svc.GetOwnedRepoList(ctx, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list owned repos: %w", err)
	}
	shared, err := p.svc.GetShareInRepoList(ctx, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list shared-in repos: %w", err)
	}
	group, err := p.svc.GetGroupReposByUser(ctx, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list group repos: %w", err)
	}

	lists := [][]*repo.Repo{owned, shared, group}

	// Guests never see org-public or server-public repos (spec §4.4).
	if !principal.IsGuest {
		pub, err := p.svc.ListInnerPubRepos(ctx)
		if err != nil {
			return nil, fmt.Errorf("list public repos: %w", err)
		}
		lists = append(lists, pub)
	}
	return lists, nil
}

func (p *Projector) fetchOrgLists(ctx context.Context, principal repo.Principal) ([][]*repo.Repo, error) {
	owned, err := p.svc.GetOrgOwnedRepoList(ctx, principal.OrgID, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list org-owned repos: %w", err)
	}
	shared, err := p.svc.GetOrgShareInRepoList(ctx, principal.OrgID, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list org shared-in repos: %w", err)
	}
	group, err := p.svc.GetOrgGroupReposByUser(ctx, principal.OrgID, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("list org group repos: %w", err)
	}

	lists := [][]*repo.Repo{owned, shared, group}

	if !principal.IsGuest {
		pub, err := p.svc.ListOrgInnerPubRepos(ctx, principal.OrgID)
		if err != nil {
			return nil, fmt.Errorf("list org public repos: %w", err)
		}
		lists = append(lists, pub)
	}
	return lists, nil
}

// projectNames assigns each repo its display name: a unique repo name is
// exposed verbatim; colliding names are exposed as "name-<first 6 hex of
// repo_id>", with ties broken by ascending repo_id (spec §4.9).
func (p *Projector) projectNames(repos []*repo.Repo) []Entry {
	byName := make(map[string][]*repo.Repo)
	for _, r := range repos {
		byName[r.Name] = append(byName[r.Name], r)
	}

	entries := make([]Entry, 0, len(repos))
	for name, group := range byName {
		if !p.ShowRepoID && len(group) == 1 {
			entries = append(entries, Entry{Repo: group[0], Name: name})
			continue
		}

		sort.Slice(group, func(i, j int) bool { return group[i].RepoID < group[j].RepoID })
		for _, r := range group {
			suffix := r.RepoID
			if len(suffix) > 6 {
				suffix = suffix[:6]
			}
			entries = append(entries, Entry{Repo: r, Name: fmt.Sprintf("%s-%s", name, suffix)})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Resolve finds the repo exposed under displayName among VisibleRepos'
// output, preferring a bare-name match over a suffixed one of the same
// root name (spec's resolver precedence rule).
func Resolve(entries []Entry, displayName string) (*repo.Repo, bool) {
	for _, e := range entries {
		if e.Name == displayName && e.Repo.Name == displayName {
			return e.Repo, true
		}
	}
	for _, e := range entries {
		if e.Name == displayName {
			return e.Repo, true
		}
	}
	return nil, false
}

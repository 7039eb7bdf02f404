// Package authdc authenticates HTTP Basic Auth credentials against the
// Cassandra users table and resolves the authenticated identity into a
// repo.Principal, the way the original Python domain controller populated
// environ["http_authenticator.username"], environ["seafile.is_guest"] and
// environ["seafile.org_id"] from ccnet/seahub after validating a password.
// Grounded on original_source/wsgidav/addons/seafile/domain_controller.py
// for the environ keys this resolves, and on the teacher's
// authenticate/authentications.go for the bcrypt compare pattern.
package authdc

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/Sesame-Disk/seafdav/internal/config"
	"github.com/Sesame-Disk/seafdav/internal/db"
	"github.com/Sesame-Disk/seafdav/internal/repo"
)

// ErrInvalidCredentials is returned for an unknown email or a password that
// doesn't match the stored hash. Callers should respond 401 without
// distinguishing the two cases, to avoid leaking which emails are registered.
var ErrInvalidCredentials = errors.New("authdc: invalid email or password")

// DomainController authenticates a WebDAV Basic Auth request into the
// repo.Principal the rest of the gateway (access.Projector,
// resolver.Resolver, repo.RepoService) operates on.
type DomainController interface {
	Authenticate(ctx context.Context, email, password string) (repo.Principal, error)
}

// CassandraDC is the DomainController backing production deployments: users,
// their bcrypt password hashes, guest flag and org id are all read from the
// users table internal/db migrates.
type CassandraDC struct {
	db *db.DB
}

// New wraps database as a DomainController.
func New(database *db.DB) *CassandraDC {
	return &CassandraDC{db: database}
}

var _ DomainController = (*CassandraDC)(nil)

// Authenticate validates email/password against the users table and
// resolves is_guest/org_id the way authDomainUser did: org_id is only
// populated when multi-tenancy is enabled, and is_guest gates the access
// projector's public-repo visibility.
func (dc *CassandraDC) Authenticate(ctx context.Context, email, password string) (repo.Principal, error) {
	var (
		hash    string
		isGuest bool
		orgID   int64
	)
	err := dc.db.Session().Query(
		`SELECT password_hash, is_guest, org_id FROM users WHERE email = ?`, email,
	).WithContext(ctx).Scan(&hash, &isGuest, &orgID)
	if err != nil {
		return repo.Principal{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return repo.Principal{}, ErrInvalidCredentials
	}

	principal := repo.Principal{Email: email, IsGuest: isGuest}
	if config.MultiTenancyEnabled() {
		principal.OrgID = orgID
	}
	return principal, nil
}

// HashPassword is the inverse of Authenticate's compare, used when
// provisioning or changing a user's password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

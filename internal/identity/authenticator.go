package identity

import (
	"context"

	"github.com/taskhive/backend/internal/models"
)

// Authenticator turns a bearer credential into an identity. It checks the
// active flag; restricted identities still authenticate and carry their flag
// for the access resolver to act on. Tenant matching is not done here; that
// is the pipeline's mandatory separate step.
type Authenticator struct {
	jwt  *JWTService
	repo *Repository
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(jwt *JWTService, repo *Repository) *Authenticator {
	return &Authenticator{jwt: jwt, repo: repo}
}

// Authenticate validates the credential and loads the identity.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*models.Identity, error) {
	claims, err := a.jwt.Validate(credential)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	ident, err := a.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !ident.IsActive {
		return nil, ErrAccountInactive
	}
	return ident, nil
}

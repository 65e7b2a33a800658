// Package identity is the global identity store. Identities are shared across
// all tenants in one table; each is permanently bound to a single tenant and
// carries a globally unique, time-ordered identifier.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/backend/internal/models"
)

var (
	// ErrInvalidCredential covers bad tokens, unknown accounts and wrong
	// passwords alike; callers must not reveal which.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAccountInactive means the identity exists but has been deactivated.
	ErrAccountInactive = errors.New("account inactive")
	// ErrEmailTaken means the email is already registered (globally, any tenant).
	ErrEmailTaken = errors.New("email already registered")
)

// IssueID returns a new globally unique identifier. UUIDv7 keeps identifiers
// time-ordered for index locality; v4 is an equally unique fallback if the
// clock source errors.
func IssueID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Repository handles identity persistence in the shared store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an identity repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const identityColumns = `id, email, password_hash, full_name, tenant_id,
	is_owner, is_admin, is_restricted, is_active, created_at, updated_at`

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var i models.Identity
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.FullName, &i.TenantID,
		&i.IsOwner, &i.IsAdmin, &i.IsRestricted, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByID returns an identity by its global identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	q := `SELECT ` + identityColumns + ` FROM users WHERE id = $1`
	i, err := scanIdentity(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredential
	}
	return i, err
}

// GetByEmail returns an identity by email. Email is globally unique.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	q := `SELECT ` + identityColumns + ` FROM users WHERE email = $1`
	i, err := scanIdentity(r.pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredential
	}
	return i, err
}

// CreateParams holds the inputs for identity creation.
type CreateParams struct {
	Email        string
	PasswordHash string
	FullName     string
	TenantID     uuid.UUID
	IsOwner      bool
	IsAdmin      bool
}

// Create inserts a new identity with a freshly issued identifier. Uniqueness
// is enforced by the primary key and the email unique constraint, never by
// check-then-insert.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Identity, error) {
	const q = `INSERT INTO users (id, email, password_hash, full_name, tenant_id, is_owner, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + identityColumns
	i, err := scanIdentity(r.pool.QueryRow(ctx, q,
		IssueID(), p.Email, p.PasswordHash, p.FullName, p.TenantID, p.IsOwner, p.IsAdmin))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return i, nil
}

// ListByTenant returns the identities bound to one tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.IdentityPublic, error) {
	q := `SELECT ` + identityColumns + ` FROM users WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.IdentityPublic
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i.ToPublic())
	}
	return list, rows.Err()
}

// SetRestricted flags or unflags an identity as restricted.
func (r *Repository) SetRestricted(ctx context.Context, id uuid.UUID, restricted bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET is_restricted = $2, updated_at = NOW() WHERE id = $1`, id, restricted)
	return err
}

// Deactivate marks an identity inactive (left the organization).
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/samber/oops"

	"github.com/divyanshdhote/server-actions/internal/db"
	"github.com/divyanshdhote/server-actions/internal/logger"
)

const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_lower_unique"
	constraintIdentity = "identities_provider_unique"
)

// Repository is the Postgres-backed user directory.
type Repository struct {
	db *db.DB
}

func NewRepository(db *db.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, email_verified, username, display_username,
	COALESCE(image, ''), created_at, updated_at`

// Exists reports whether a user already holds the exact username.
func (r *Repository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE username = $1
		)
	`, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// Create inserts the user and fills in ID and timestamps.
func (r *Repository) Create(ctx context.Context, u *User) error {
	return r.insert(ctx, r.db, u)
}

// CreateWithIdentity inserts the user and its provider link in one
// transaction so a failed link never leaves an orphaned account.
func (r *Repository) CreateWithIdentity(ctx context.Context, u *User, identity Identity) error {
	return r.CreateWith(ctx, u, func(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
		return linkIdentity(ctx, tx, userID, identity)
	})
}

// CreateWith inserts the user and runs attach inside the same transaction.
// Any error from attach rolls the user back.
func (r *Repository) CreateWith(
	ctx context.Context,
	u *User,
	attach func(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insert(ctx, tx, u); err != nil {
		return err
	}

	if err := attach(ctx, tx, u.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// LinkIdentity attaches a provider account to an existing user.
func (r *Repository) LinkIdentity(ctx context.Context, userID uuid.UUID, identity Identity) error {
	return linkIdentity(ctx, r.db, userID, identity)
}

// FindByIdentity returns the user linked to the provider account.
func (r *Repository) FindByIdentity(ctx context.Context, identity Identity) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.email_verified, u.username, u.display_username,
			COALESCE(u.image, ''), u.created_at, u.updated_at
		FROM identities i
		JOIN users u ON u.id = i.user_id
		WHERE i.provider = $1
		  AND i.provider_user_id = $2
	`, identity.Provider, identity.ProviderUserID)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_IDENTITY_FAILED").
			With("provider", identity.Provider).
			Wrap(err)
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").With("id", id.String()).Wrap(err)
	}
	return u, nil
}

// GetByEmail matches case-insensitively, mirroring the unique index.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return u, nil
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) insert(ctx context.Context, q execQuerier, u *User) error {
	if u.DisplayUsername == "" {
		u.DisplayUsername = u.Username
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO users (name, email, email_verified, username, display_username, image)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at, updated_at
	`,
		u.Name,
		u.Email,
		u.EmailVerified,
		u.Username,
		u.DisplayUsername,
		u.Image,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)

	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			logger.Warn("user insert hit unique constraint", map[string]any{
				"username": u.Username,
				"reason":   mapped.Error(),
			})
			return mapped
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", u.Username).
			Wrap(err)
	}
	return nil
}

func linkIdentity(ctx context.Context, q execQuerier, userID uuid.UUID, identity Identity) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return oops.Code("IDENTITY_LINK_FAILED").
			With("provider", identity.Provider).
			Wrap(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.EmailVerified,
		&u.Username,
		&u.DisplayUsername,
		&u.Image,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// uniqueViolation maps a 23505 on a known constraint to a sentinel.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgerrcode.UniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case constraintUsername:
		return ErrUsernameTaken
	case constraintEmail:
		return ErrEmailTaken
	case constraintIdentity:
		return ErrIdentityTaken
	default:
		return nil
	}
}

package credentials

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
	"github.com/divyanshdhote/server-actions/internal/users"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
)

// UserStore is the slice of the user directory the service needs.
type UserStore interface {
	CreateWith(
		ctx context.Context,
		u *users.User,
		attach func(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error,
	) error
}

type Service struct {
	db    *db.DB
	users UserStore

	// compared against when the email is unknown so both paths cost a bcrypt run
	dummyHash string
}

func NewService(db *db.DB, users UserStore) *Service {
	dummy, _, _ := HashPassword("timing-equaliser-password")
	return &Service{db: db, users: users, dummyHash: dummy}
}

// Register creates the account for a sign-up form and returns the user id.
// The user row and its credentials are written in one transaction. An email
// that already belongs to any account, including one created through a
// social provider, is rejected with ErrAlreadyRegistered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	// 1. Hash first so a rejected password never touches the database
	hash, version, err := HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	u := &users.User{
		Name:            in.Name,
		Email:           in.Email,
		Username:        in.Username,
		DisplayUsername: in.Username,
	}

	// 2. Create user + credentials
	err = s.users.CreateWith(ctx, u, func(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash, hash_version)
			VALUES ($1, $2, $3)
		`, userID, hash, version)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
				return ErrAlreadyRegistered
			}
			return oops.Code("CREDENTIALS_CREATE_FAILED").Wrap(err)
		}
		return nil
	})
	if errors.Is(err, users.ErrEmailTaken) {
		return "", ErrAlreadyRegistered
	}
	if err != nil {
		return "", err
	}

	logger.Info("user registered", map[string]any{
		"user_id":  u.ID.String(),
		"username": u.Username,
	})

	return u.ID.String(), nil
}

func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	var (
		userID       uuid.UUID
		passwordHash string
	)

	// 1. Find user + credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, c.password_hash
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, email).Scan(&userID, &passwordHash)

	if errors.Is(err, sql.ErrNoRows) {
		// hide whether user exists or not
		_ = VerifyPassword(s.dummyHash, password)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", oops.Code("CREDENTIALS_LOOKUP_FAILED").Wrap(err)
	}

	// 2. Verify password
	if err := VerifyPassword(passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return userID.String(), nil
}

package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/divyanshdhote/server-actions/internal/auth"
	"github.com/divyanshdhote/server-actions/internal/auth/username"
	"github.com/divyanshdhote/server-actions/internal/logger"
	"github.com/divyanshdhote/server-actions/internal/users"
)

const (
	CodeProvisioningConflict = "ACCOUNT_PROVISIONING_CONFLICT"

	conflictBackoffBase = 10 * time.Millisecond
)

// ErrProvisioningConflict is wrapped when every reserved username was
// claimed by a concurrent sign-in before the insert landed.
var ErrProvisioningConflict = errors.New("username claimed concurrently")

// UserDirectory is the persistence the resolver needs from the user store.
type UserDirectory interface {
	FindByIdentity(ctx context.Context, identity users.Identity) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	LinkIdentity(ctx context.Context, userID uuid.UUID, identity users.Identity) error
	CreateWithIdentity(ctx context.Context, u *users.User, identity users.Identity) error
}

// UsernameResolver reserves a free username for a new account.
type UsernameResolver interface {
	Resolve(ctx context.Context, p username.Profile) (username.Reservation, error)
	ResolveFrom(ctx context.Context, base string, startSuffix int) (username.Reservation, error)
}

// DBResolver resolves identities using the user directory and provisions
// a new account on first sign-in.
type DBResolver struct {
	users     UserDirectory
	usernames UsernameResolver
	retries   uint64
}

func NewDBResolver(dir UserDirectory, usernames UsernameResolver, conflictRetries uint64) *DBResolver {
	return &DBResolver{
		users:     dir,
		usernames: usernames,
		retries:   conflictRetries,
	}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}

	link := users.Identity{
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
	}

	// 1. Known provider account
	existing, err := r.users.FindByIdentity(ctx, link)
	if err == nil {
		return existing.ID.String(), nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return "", err
	}

	// 2. Existing user with the same email, new provider
	if id, ok, err := r.linkByEmail(ctx, identity.Email, link); err != nil || ok {
		return id, err
	}

	// 3. New user
	u, err := r.provision(ctx, identity, link)
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		// Another request created the account between steps 2 and 3.
		if id, ok, err := r.linkByEmail(ctx, identity.Email, link); err != nil || ok {
			return id, err
		}
	case errors.Is(err, users.ErrIdentityTaken):
		// A concurrent callback for the same provider account won.
		return r.linkedUser(ctx, link)
	}
	if err != nil {
		return "", err
	}

	logger.Info("account provisioned", map[string]any{
		"user_id":  u.ID.String(),
		"provider": identity.Provider,
		"username": u.Username,
	})

	return u.ID.String(), nil
}

func (r *DBResolver) linkByEmail(ctx context.Context, email string, link users.Identity) (string, bool, error) {
	if email == "" {
		return "", false, nil
	}

	u, err := r.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	err = r.users.LinkIdentity(ctx, u.ID, link)
	if errors.Is(err, users.ErrIdentityTaken) {
		id, err := r.linkedUser(ctx, link)
		return id, err == nil, err
	}
	if err != nil {
		return "", false, err
	}

	logger.Info("identity linked to existing user", map[string]any{
		"user_id":  u.ID.String(),
		"provider": link.Provider,
	})
	return u.ID.String(), true, nil
}

// linkedUser returns the user the identity is already linked to.
func (r *DBResolver) linkedUser(ctx context.Context, link users.Identity) (string, error) {
	u, err := r.users.FindByIdentity(ctx, link)
	if err != nil {
		return "", err
	}
	return u.ID.String(), nil
}

// provision reserves a username and inserts the user with its identity.
// A unique violation on username means another sign-in won the race for
// the same probe; the search resumes past the lost suffix.
func (r *DBResolver) provision(
	ctx context.Context,
	identity *auth.Identity,
	link users.Identity,
) (*users.User, error) {

	res, err := r.usernames.Resolve(ctx, identity.Profile())
	if err != nil {
		return nil, err
	}

	var created *users.User
	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(conflictBackoffBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		u := newUser(identity, res)

		err := r.users.CreateWithIdentity(ctx, u, link)
		if err == nil {
			created = u
			return nil
		}
		if !errors.Is(err, users.ErrUsernameTaken) {
			return err
		}

		logger.Warn("username claimed concurrently, retrying", map[string]any{
			"base":     res.Base,
			"username": res.Username,
		})

		next, rerr := r.usernames.ResolveFrom(ctx, res.Base, res.Suffix+1)
		if rerr != nil {
			return rerr
		}
		res = next
		return retry.RetryableError(ErrProvisioningConflict)
	})

	if errors.Is(err, ErrProvisioningConflict) {
		return nil, oops.
			Code(CodeProvisioningConflict).
			With("provider", identity.Provider).
			With("base", res.Base).
			Wrap(err)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func newUser(identity *auth.Identity, res username.Reservation) *users.User {
	name := identity.Name
	if name == "" {
		name = res.Username
	}
	return &users.User{
		Name:            name,
		Email:           identity.Email,
		EmailVerified:   identity.EmailVerified,
		Username:        res.Username,
		DisplayUsername: res.DisplayUsername,
		Image:           identity.Picture,
	}
}

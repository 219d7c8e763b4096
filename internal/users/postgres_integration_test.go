//go:build integration

package users_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/divyanshdhote/server-actions/internal/auth"
	"github.com/divyanshdhote/server-actions/internal/auth/resolver"
	"github.com/divyanshdhote/server-actions/internal/auth/username"
	"github.com/divyanshdhote/server-actions/internal/db"
	"github.com/divyanshdhote/server-actions/internal/users"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *db.DB
	repo      *users.Repository
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("app_test"),
		postgres.WithUsername("app"),
		postgres.WithPassword("app"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)

	dsn, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = db.Open(s.ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.db.DB))
	// Running twice is a no-op.
	s.Require().NoError(db.Migrate(s.db.DB))

	s.repo = users.NewRepository(s.db)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE users CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TestUniqueConstraints() {
	t := s.T()

	u := &users.User{Name: "Bob", Email: "bob@mail.com", Username: "bob"}
	require.NoError(t, s.repo.Create(s.ctx, u))

	taken, err := s.repo.Exists(s.ctx, "bob")
	require.NoError(t, err)
	assert.True(t, taken)

	// Matching is exact: a different case is a different username.
	taken, err = s.repo.Exists(s.ctx, "Bob")
	require.NoError(t, err)
	assert.False(t, taken)

	err = s.repo.Create(s.ctx, &users.User{Email: "other@mail.com", Username: "bob"})
	assert.ErrorIs(t, err, users.ErrUsernameTaken)

	err = s.repo.Create(s.ctx, &users.User{Email: "BOB@mail.com", Username: "bob2"})
	assert.ErrorIs(t, err, users.ErrEmailTaken)

	got, err := s.repo.GetByEmail(s.ctx, "BOB@MAIL.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func (s *PostgresSuite) TestResolveAgainstDirectory() {
	t := s.T()
	for _, name := range []string{"bob", "bob1", "bob2"} {
		require.NoError(t, s.repo.Create(s.ctx, &users.User{Email: name + "@seed.test", Username: name}))
	}

	res, err := username.NewResolver(s.repo).Resolve(s.ctx, username.Profile{Email: "bob@mail.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob3", res.Username)
	assert.Equal(t, 4, res.Attempts)
}

func (s *PostgresSuite) TestConcurrentFirstSignIns() {
	t := s.T()
	r := resolver.NewDBResolver(s.repo, username.NewResolver(s.repo), 10)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Resolve(s.ctx, &auth.Identity{
				Provider:       "google",
				ProviderUserID: fmt.Sprintf("sub-%d", i),
				Email:          fmt.Sprintf("sam@host%d.test", i),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	rows, err := s.db.QueryContext(s.ctx, `SELECT username FROM users`)
	require.NoError(t, err)
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		assert.False(t, seen[name], "duplicate username %s", name)
		seen[name] = true
	}
	require.NoError(t, rows.Err())
	assert.Len(t, seen, n)
	assert.True(t, seen["sam"])
}

func (s *PostgresSuite) TestConcurrentCallbacksForOneAccount() {
	t := s.T()
	r := resolver.NewDBResolver(s.repo, username.NewResolver(s.repo), 10)
	identity := &auth.Identity{
		Provider:       "google",
		ProviderUserID: "same-sub",
		Email:          "zoe@mail.com",
		Name:           "Zoe",
	}

	const n = 4
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.Resolve(s.ctx, identity)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, s.db.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)

	linked, err := s.repo.FindByIdentity(s.ctx, users.Identity{Provider: "google", ProviderUserID: "same-sub"})
	require.NoError(t, err)
	assert.Equal(t, ids[0], linked.ID.String())
}

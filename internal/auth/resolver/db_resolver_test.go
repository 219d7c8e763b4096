package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divyanshdhote/server-actions/internal/auth"
	"github.com/divyanshdhote/server-actions/internal/auth/username"
	"github.com/divyanshdhote/server-actions/internal/users"
)

// fakeDirectory keeps users in memory and enforces the same unique
// constraints as the database.
type fakeDirectory struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*users.User
	identities map[users.Identity]uuid.UUID

	// beforeCreate runs before each insert, outside the lock.
	beforeCreate func(u *users.User)
	createErr    error
	creates      int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:       map[uuid.UUID]*users.User{},
		identities: map[users.Identity]uuid.UUID{},
	}
}

func (f *fakeDirectory) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDirectory) FindByIdentity(_ context.Context, identity users.Identity) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[identity]
	if !ok {
		return nil, users.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeDirectory) GetByEmail(_ context.Context, email string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, users.ErrNotFound
}

func (f *fakeDirectory) LinkIdentity(_ context.Context, userID uuid.UUID, identity users.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.identities[identity]; ok {
		return users.ErrIdentityTaken
	}
	f.identities[identity] = userID
	return nil
}

func (f *fakeDirectory) CreateWithIdentity(_ context.Context, u *users.User, identity users.Identity) error {
	if f.beforeCreate != nil {
		f.beforeCreate(u)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.Username == u.Username {
			return users.ErrUsernameTaken
		}
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return users.ErrEmailTaken
		}
	}
	if _, ok := f.identities[identity]; ok {
		return users.ErrIdentityTaken
	}
	u.ID = uuid.New()
	if u.DisplayUsername == "" {
		u.DisplayUsername = u.Username
	}
	f.byID[u.ID] = u
	f.identities[identity] = u.ID
	return nil
}

// seed inserts a user directly, bypassing hooks.
func (f *fakeDirectory) seed(name, email string) *users.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &users.User{ID: uuid.New(), Username: name, DisplayUsername: name, Email: email}
	f.byID[u.ID] = u
	return u
}

func (f *fakeDirectory) user(t *testing.T, id string) *users.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[uuid.MustParse(id)]
	require.True(t, ok, "user %s not stored", id)
	return u
}

func newTestResolver(dir *fakeDirectory, retries uint64) *DBResolver {
	return NewDBResolver(dir, username.NewResolver(dir), retries)
}

func googleIdentity(sub, email, name string) *auth.Identity {
	return &auth.Identity{
		Provider:       "google",
		ProviderUserID: sub,
		Email:          email,
		EmailVerified:  true,
		Name:           name,
		Picture:        "https://img.test/" + sub,
	}
}

func TestDBResolver_NilIdentity(t *testing.T) {
	_, err := newTestResolver(newFakeDirectory(), 0).Resolve(context.Background(), nil)
	require.Error(t, err)
}

func TestDBResolver_ProvisionsNewUser(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 3)

	id, err := r.Resolve(ctx, googleIdentity("sub-1", "alice@example.com", "Alice Smith"))
	require.NoError(t, err)

	u := dir.user(t, id)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice", u.DisplayUsername)
	assert.Equal(t, "Alice Smith", u.Name)
	assert.Equal(t, "https://img.test/sub-1", u.Image)
	assert.True(t, u.EmailVerified)
}

func TestDBResolver_SuffixesTakenUsername(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	dir.seed("bob", "other@mail.com")
	r := newTestResolver(dir, 3)

	id, err := r.Resolve(ctx, googleIdentity("sub-2", "bob@mail.com", ""))
	require.NoError(t, err)

	u := dir.user(t, id)
	assert.Equal(t, "bob1", u.Username)
	assert.Equal(t, "bob1", u.Name, "name falls back to the username")
}

func TestDBResolver_ReturnsLinkedUser(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 3)

	first, err := r.Resolve(ctx, googleIdentity("sub-3", "carol@mail.com", "Carol"))
	require.NoError(t, err)

	second, err := r.Resolve(ctx, googleIdentity("sub-3", "carol@mail.com", "Carol"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dir.creates)
}

func TestDBResolver_LinksByEmail(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	existing := dir.seed("dave", "Dave@Mail.com")
	r := newTestResolver(dir, 3)

	id, err := r.Resolve(ctx, &auth.Identity{
		Provider:       "keycloak",
		ProviderUserID: "kc-1",
		Email:          "dave@mail.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID.String(), id)
	assert.Zero(t, dir.creates)

	linked, err := dir.FindByIdentity(ctx, users.Identity{Provider: "keycloak", ProviderUserID: "kc-1"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.ID)
}

func TestDBResolver_RetriesAfterConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 3)

	// A concurrent sign-in takes the reserved name right before our insert.
	stolen := false
	dir.beforeCreate = func(u *users.User) {
		if !stolen {
			stolen = true
			dir.seed(u.Username, "racer@mail.com")
		}
	}

	id, err := r.Resolve(ctx, googleIdentity("sub-4", "erin@mail.com", "Erin"))
	require.NoError(t, err)

	assert.Equal(t, "erin1", dir.user(t, id).Username)
	assert.Equal(t, 2, dir.creates)
}

func TestDBResolver_ConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 2)

	dir.beforeCreate = func(u *users.User) {
		dir.seed(u.Username, "")
	}

	_, err := r.Resolve(ctx, googleIdentity("sub-5", "frank@mail.com", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvisioningConflict)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, CodeProvisioningConflict, oopsErr.Code())
	assert.Equal(t, 3, dir.creates)
}

func TestDBResolver_EmailRaceFallsBackToLink(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 3)

	var winner *users.User
	dir.beforeCreate = func(u *users.User) {
		if winner == nil {
			winner = dir.seed("grace-other", u.Email)
		}
	}

	id, err := r.Resolve(ctx, googleIdentity("sub-6", "grace@mail.com", ""))
	require.NoError(t, err)
	assert.Equal(t, winner.ID.String(), id)
}

// sameIdentityRace runs two callbacks for one provider account and holds
// both at their first insert until the other has arrived.
func sameIdentityRace(t *testing.T, identity *auth.Identity) (*fakeDirectory, [2]string) {
	t.Helper()
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 3)

	var (
		mu      sync.Mutex
		calls   int
		arrived sync.WaitGroup
	)
	arrived.Add(2)
	dir.beforeCreate = func(*users.User) {
		mu.Lock()
		calls++
		first := calls <= 2
		mu.Unlock()
		if first {
			arrived.Done()
			arrived.Wait()
		}
	}

	var (
		ids [2]string
		wg  sync.WaitGroup
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(ctx, identity)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	return dir, ids
}

func TestDBResolver_SameIdentityRace(t *testing.T) {
	t.Run("with email", func(t *testing.T) {
		dir, ids := sameIdentityRace(t, googleIdentity("same-sub", "zoe@mail.com", "Zoe"))

		require.NotEmpty(t, ids[0])
		assert.Equal(t, ids[0], ids[1])
		assert.Len(t, dir.byID, 1)
	})

	t.Run("without email", func(t *testing.T) {
		dir, ids := sameIdentityRace(t, googleIdentity("no-mail-sub", "", "Zoe"))

		require.NotEmpty(t, ids[0])
		assert.Equal(t, ids[0], ids[1])
		assert.Len(t, dir.byID, 1)
	})
}

func TestDBResolver_PropagatesUsernameErrors(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := NewDBResolver(dir, username.NewResolver(failingDirectory{}), 3)

	_, err := r.Resolve(ctx, googleIdentity("sub-7", "heidi@mail.com", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, username.ErrDirectoryUnavailable)
	assert.Zero(t, dir.creates)
}

func TestDBResolver_PropagatesCreateErrors(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	boom := errors.New("insert failed")
	dir.createErr = boom

	_, err := newTestResolver(dir, 3).Resolve(ctx, googleIdentity("sub-8", "ivan@mail.com", ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, dir.creates)
}

func TestDBResolver_ConcurrentFirstSignIns(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	r := newTestResolver(dir, 10)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same local part, different domains.
			email := "sam@" + string(rune('a'+i)) + ".test"
			id, err := r.Resolve(ctx, googleIdentity(uuid.NewString(), email, ""))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		name := dir.user(t, id).Username
		assert.False(t, seen[name], "duplicate username %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
}

type failingDirectory struct{}

func (failingDirectory) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

package account

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupService(t *testing.T) (*Service, *store.Repositories) {
	t.Helper()

	db, err := store.Open(store.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	repos := store.NewRepositories(db, 0)

	svc, err := NewService(
		repos.Users,
		NewPasswordHasher(bcrypt.MinCost),
		NewJWTManager(JWTConfig{SecretKey: "test-secret", AccessTokenDuration: time.Minute}),
		NewMemorySessionStore(nil),
		time.Hour,
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, repos
}

func register(t *testing.T, svc *Service, username string) *domain.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{Username: username, Password: "password123"})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return u
}

func TestRegisterInput_Validate(t *testing.T) {
	tests := []struct {
		name      string
		input     RegisterInput
		wantField string
	}{
		{name: "valid", input: RegisterInput{Username: "alice", Password: "password123"}},
		{name: "valid with email", input: RegisterInput{Username: "a.b+c@d-e_f", Email: "a@example.com", Password: "password123"}},
		{name: "missing username", input: RegisterInput{Password: "password123"}, wantField: "username"},
		{name: "bad username characters", input: RegisterInput{Username: "al ice", Password: "password123"}, wantField: "username"},
		{name: "short password", input: RegisterInput{Username: "alice", Password: "short"}, wantField: "password"},
		{name: "bad email", input: RegisterInput{Username: "alice", Email: "nope", Password: "password123"}, wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toValidationError(tt.input.Validate())
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.FieldErrors(), tt.wantField)
		})
	}
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	user := register(t, svc, "alice")
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password123"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")

	_, err = svc.Login(ctx, "alice", "wrong-password", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "password123", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Login(ctx, "alice", "password123", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.NotEmpty(t, res.AccessToken)
	assert.Len(t, res.SessionID, 21)

	actor, err := svc.ResolveSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, user.ID, actor.ID)

	actor, err = svc.ValidateToken(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", actor.Username)

	require.NoError(t, svc.Logout(ctx, res.SessionID))
	actor, err = svc.ResolveSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, actor)
}

func TestService_LoginKeepsSessionValues(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	register(t, svc, "bob")

	anon, err := svc.SetSessionValue(ctx, "", "foobar", "fizz buzz")
	require.NoError(t, err)

	actor, err := svc.ResolveSession(ctx, anon)
	require.NoError(t, err)
	assert.Nil(t, actor, "anonymous session must not resolve to an actor")

	res, err := svc.Login(ctx, "bob", "password123", anon)
	require.NoError(t, err)
	assert.NotEqual(t, anon, res.SessionID)

	v, ok, err := svc.SessionValue(ctx, res.SessionID, "foobar")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fizz buzz", v)

	_, ok, err = svc.SessionValue(ctx, anon, "foobar")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_ActorCarriesPermissions(t *testing.T) {
	svc, repos := setupService(t)
	ctx := context.Background()
	u := register(t, svc, "carol")
	require.NoError(t, repos.Users.GrantPermission(ctx, u.ID, domain.PermViewOrder))

	res, err := svc.Login(ctx, "carol", "password123", "")
	require.NoError(t, err)

	actor, err := svc.ValidateToken(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.True(t, actor.HasPerm(domain.PermViewOrder))
	assert.False(t, actor.HasPerm(domain.PermChangeProduct))
}

func TestService_ValidateTokenRejectsDeletedUser(t *testing.T) {
	svc, repos := setupService(t)
	ctx := context.Background()
	u := register(t, svc, "dave")

	res, err := svc.Login(ctx, "dave", "password123", "")
	require.NoError(t, err)
	require.NoError(t, repos.Users.Delete(ctx, u.ID))

	_, err = svc.ValidateToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	actor, err := svc.ResolveSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, actor)
}

func TestService_UpdateProfile(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	owner := register(t, svc, "erin")
	other := register(t, svc, "frank")

	ownerActor := &domain.Actor{ID: owner.ID}
	otherActor := &domain.Actor{ID: other.ID}
	staff := &domain.Actor{ID: 999, Staff: true}

	profile, err := svc.UpdateProfile(ctx, ownerActor, owner.ID, ProfileInput{Bio: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", profile.Bio)

	_, err = svc.UpdateProfile(ctx, otherActor, owner.ID, ProfileInput{Bio: "hacked"})
	var denied *authz.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonNotOwner, denied.Decision.Reason())

	_, err = svc.UpdateProfile(ctx, staff, owner.ID, ProfileInput{Bio: "moderated"})
	assert.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, nil, owner.ID, ProfileInput{Bio: "anon"})
	require.ErrorAs(t, err, &denied)
	assert.True(t, denied.Decision.Anonymous())
}

func TestService_DeleteUser(t *testing.T) {
	svc, repos := setupService(t)
	ctx := context.Background()
	buyer := register(t, svc, "grace")
	loner := register(t, svc, "heidi")
	_, err := repos.Orders.Create(ctx, shop.OrderFields{UserID: buyer.ID})
	require.NoError(t, err)

	admin := &domain.Actor{ID: 1000, Superuser: true}

	err = svc.DeleteUser(ctx, &domain.Actor{ID: loner.ID, Staff: true}, loner.ID)
	var denied *authz.DeniedError
	assert.ErrorAs(t, err, &denied)

	err = svc.DeleteUser(ctx, admin, buyer.ID)
	assert.ErrorIs(t, err, store.ErrIntegrity)

	require.NoError(t, svc.DeleteUser(ctx, admin, loner.ID))
	_, err = svc.UserDetail(ctx, loner.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_GroupsRequireSuperuser(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, &domain.Actor{ID: 5, Staff: true}, GroupInput{Name: "editors"})
	if !errors.As(err, new(*authz.DeniedError)) {
		t.Fatalf("CreateGroup() by staff error = %v, want denied", err)
	}

	admin := &domain.Actor{ID: 1, Superuser: true}
	_, err = svc.CreateGroup(ctx, admin, GroupInput{Name: " "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	group, err := svc.CreateGroup(ctx, admin, GroupInput{Name: "editors", Permissions: []string{domain.PermChangeProduct}})
	require.NoError(t, err)
	assert.Equal(t, "editors", group.Name)

	groups, err := svc.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{domain.PermChangeProduct}, groups[0].Permissions)
}

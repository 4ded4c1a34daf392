package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	domain "github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/events"
	"github.com/example/shop-monolith/modules/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/go-monolith/mono"
	gonanoid "github.com/jaevor/go-nanoid"
)

// UserStore is the persistence the account service needs.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	Get(ctx context.Context, id uint) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, id uint) error
	Permissions(ctx context.Context, userID uint) ([]string, error)
	GrantPermission(ctx context.Context, userID uint, codename string) error
	GetProfile(ctx context.Context, userID uint) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, userID uint, bio, avatar string) (*domain.Profile, error)
	Groups(ctx context.Context) ([]domain.Group, error)
	CreateGroup(ctx context.Context, name string, codenames []string) (*domain.Group, error)
}

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the sign-up payload.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required,
			validation.Length(1, 150),
			validation.Match(usernamePattern).Error("may contain only letters, numbers and @/./+/-/_ characters"),
		),
		validation.Field(&in.Email, is.EmailFormat),
		// bcrypt only reads the first 72 bytes
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
	)
}

// LoginResult is what a successful sign-in returns.
type LoginResult struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
	TokenType   string       `json:"token_type"`
	SessionID   string       `json:"-"`
}

// UserDetail is a user with its profile and effective permissions.
type UserDetail struct {
	User        *domain.User    `json:"user"`
	Profile     *domain.Profile `json:"profile"`
	Permissions []string        `json:"permissions"`
}

// Service handles accounts, sessions and tokens.
type Service struct {
	users      UserStore
	hasher     *PasswordHasher
	jwt        *JWTManager
	sessions   SessionStore
	sessionTTL time.Duration
	newID      func() string
	now        func() time.Time
	bus        mono.EventBus
}

// NewService creates a Service. Session ids are 21-character nanoids.
func NewService(users UserStore, hasher *PasswordHasher, jwt *JWTManager, sessions SessionStore, sessionTTL time.Duration) (*Service, error) {
	newID, err := gonanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create session id generator: %w", err)
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Service{
		users:      users,
		hasher:     hasher,
		jwt:        jwt,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		newID:      newID,
		now:        time.Now,
	}, nil
}

// SetEventBus enables event publishing.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.bus = bus
}

// Register creates an active, unprivileged account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, in, false, false)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		event := events.UserRegisteredEvent{
			UserID:       user.ID,
			Username:     user.Username,
			RegisteredAt: user.DateJoined,
		}
		if err := events.UserRegisteredV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[account] Warning: failed to publish UserRegistered event for user %d: %v", user.ID, err)
		}
	}
	return user, nil
}

// CreateUser creates an account with the given privileges. It backs the
// create-user command.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, staff, superuser bool) (*domain.User, error) {
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}
	return s.createUser(ctx, in, staff, superuser)
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, staff, superuser bool) (*domain.User, error) {
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, fieldError("username", "a user with that username already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		IsStaff:      staff,
		IsSuperuser:  superuser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrIntegrity) {
			return nil, fieldError("username", "a user with that username already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login checks credentials, opens a session and issues an access token.
// Values of the current session carry over to the new session id.
func (s *Service) Login(ctx context.Context, username, password, currentSessionID string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	values := map[string]string{}
	if currentSessionID != "" {
		if old, err := s.sessions.Load(ctx, currentSessionID); err == nil && old != nil {
			values = old.Values
		}
		if err := s.sessions.Delete(ctx, currentSessionID); err != nil {
			return nil, err
		}
	}

	session, err := s.newSession(ctx, user.ID, values)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &LoginResult{
		User:        user,
		AccessToken: token,
		ExpiresIn:   s.jwt.AccessTokenDuration(),
		TokenType:   "Bearer",
		SessionID:   session.ID,
	}, nil
}

// Logout ends a session. Unknown sessions are ignored.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) newSession(ctx context.Context, userID uint, values map[string]string) (*Session, error) {
	if values == nil {
		values = map[string]string{}
	}
	now := s.now()
	session := &Session{
		ID:        s.newID(),
		UserID:    userID,
		Values:    values,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ValidateToken resolves a bearer token to its actor.
func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.Actor, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return s.actorFor(ctx, claims.UserID)
}

// ResolveSession returns the actor of a signed-in session, or nil for an
// anonymous, unknown or expired session.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*domain.Actor, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil || session == nil || session.UserID == 0 {
		return nil, err
	}
	actor, err := s.actorFor(ctx, session.UserID)
	if errors.Is(err, ErrInvalidToken) {
		// the user was removed or disabled after signing in
		return nil, nil
	}
	return actor, err
}

func (s *Service) actorFor(ctx context.Context, userID uint) (*domain.Actor, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	perms, err := s.users.Permissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.NewActor(user, perms), nil
}

// SetSessionValue stores key=value in the session, creating an anonymous
// session when sessionID is empty or unknown. It returns the session id.
func (s *Service) SetSessionValue(ctx context.Context, sessionID, key, value string) (string, error) {
	var session *Session
	if sessionID != "" {
		loaded, err := s.sessions.Load(ctx, sessionID)
		if err != nil {
			return "", err
		}
		session = loaded
	}
	if session == nil {
		created, err := s.newSession(ctx, 0, nil)
		if err != nil {
			return "", err
		}
		session = created
	}

	session.Values[key] = value
	if err := s.sessions.Save(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// SessionValue reads a session value. The boolean is false when the session
// or key is missing.
func (s *Service) SessionValue(ctx context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil || session == nil {
		return "", false, err
	}
	v, ok := session.Values[key]
	return v, ok, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// UserDetail returns a user with profile and permissions.
func (s *Service) UserDetail(ctx context.Context, userID uint) (*UserDetail, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms, err := s.users.Permissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: user, Profile: profile, Permissions: perms}, nil
}

// ProfileInput is the profile update payload. Avatar is a media key.
type ProfileInput struct {
	Bio    string `json:"bio"`
	Avatar string `json:"avatar"`
}

// Validate checks the profile payload.
func (in ProfileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Bio, validation.Length(0, 500)),
	)
}

// UpdateProfile writes a profile after checking CanManageUser.
func (s *Service) UpdateProfile(ctx context.Context, actor *domain.Actor, userID uint, in ProfileInput) (*domain.Profile, error) {
	if err := authz.CanManageUser(actor, userID).Err(); err != nil {
		return nil, err
	}
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}
	return s.users.UpsertProfile(ctx, userID, in.Bio, in.Avatar)
}

// DeleteUser removes an account. Only superusers may do this, and accounts
// owning orders are protected.
func (s *Service) DeleteUser(ctx context.Context, actor *domain.Actor, userID uint) error {
	if err := authz.CanManageAccounts(actor).Err(); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}

	if s.bus != nil {
		event := events.UserDeletedEvent{UserID: userID, ActorID: actor.ID, DeletedAt: s.now()}
		if err := events.UserDeletedV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[account] Warning: failed to publish UserDeleted event for user %d: %v", userID, err)
		}
	}
	return nil
}

// GrantPermission gives a user a permission. Superusers only.
func (s *Service) GrantPermission(ctx context.Context, actor *domain.Actor, userID uint, codename string) error {
	if err := authz.CanManageAccounts(actor).Err(); err != nil {
		return err
	}
	if strings.TrimSpace(codename) == "" {
		return fieldError("codename", "cannot be blank")
	}
	return s.users.GrantPermission(ctx, userID, codename)
}

// GrantPermissionUnchecked gives a user a permission without an actor. It
// backs the create-user command.
func (s *Service) GrantPermissionUnchecked(ctx context.Context, userID uint, codename string) error {
	return s.users.GrantPermission(ctx, userID, codename)
}

// Groups lists every group.
func (s *Service) Groups(ctx context.Context) ([]domain.Group, error) {
	return s.users.Groups(ctx)
}

// GroupInput is the group creation payload.
type GroupInput struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Validate checks the group payload.
func (in GroupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 150)),
	)
}

// CreateGroup stores a group. Superusers only.
func (s *Service) CreateGroup(ctx context.Context, actor *domain.Actor, in GroupInput) (*domain.Group, error) {
	if err := authz.CanManageAccounts(actor).Err(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}
	return s.users.CreateGroup(ctx, in.Name, in.Permissions)
}

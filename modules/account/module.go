package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/shop-monolith/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"
)

// Config tunes the account module.
type Config struct {
	JWT        JWTConfig
	SessionTTL time.Duration
	BcryptCost int
}

// Module provides accounts, sessions and token validation.
type Module struct {
	users    UserStore
	cfg      Config
	logger   types.Logger
	kv       *kvjetstream.PluginModule
	sessions SessionStore
	service  *Service
	eventBus mono.EventBus
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the account module. Sessions live in the kv plugin's
// sessions bucket, or in memory when no kv plugin is registered.
func NewModule(users UserStore, cfg Config, logger types.Logger) (*Module, error) {
	m := &Module{
		users:    users,
		cfg:      cfg,
		logger:   logger,
		sessions: NewMemorySessionStore(nil),
	}
	svc, err := NewService(users, NewPasswordHasher(cfg.BcryptCost), NewJWTManager(cfg.JWT), &lazySessionStore{m: m}, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	m.service = svc
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "account"
}

// Service returns the account service.
func (m *Module) Service() *Service {
	return m.service
}

// SetPlugin receives the KV plugin from the framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "kv" {
		return
	}
	kv, ok := plugin.(*kvjetstream.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for kv",
			"alias", alias,
			"expected", "*kvjetstream.PluginModule")
		return
	}
	m.kv = kv
	m.logger.Info("Received KV plugin", "alias", alias)
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	m.service.SetEventBus(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserRegisteredV1.ToBase(),
		events.UserDeletedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "validate-token", json.Unmarshal, json.Marshal, m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register validate-token service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "resolve-session", json.Unmarshal, json.Marshal, m.handleResolveSession,
	); err != nil {
		return fmt.Errorf("failed to register resolve-session service: %w", err)
	}

	m.logger.Info("Registered services", "services", "validate-token, resolve-session")
	return nil
}

// Start binds the sessions bucket when the kv plugin is available.
func (m *Module) Start(_ context.Context) error {
	if m.kv != nil {
		bucket := m.kv.Bucket(SessionsBucket)
		if bucket == nil {
			return fmt.Errorf("bucket '%s' not found in KV plugin", SessionsBucket)
		}
		m.sessions = NewKVSessionStore(bucket)
	} else {
		m.logger.Warn("KV plugin not registered, sessions are kept in memory")
	}
	if m.eventBus == nil {
		m.logger.Warn("eventBus not set, events will not be published")
	}
	m.logger.Info("Account module started", "session_ttl", m.service.sessionTTL.String())
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Account module stopped")
	return nil
}

// Health reports the session backend.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	backend := "memory"
	if _, ok := m.sessions.(*KVSessionStore); ok {
		backend = "kv-jetstream"
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sessions": backend,
		},
	}
}

func (m *Module) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	actor, err := m.service.ValidateToken(ctx, req.Token)
	if err != nil {
		errMsg := "invalid token"
		if errors.Is(err, ErrExpiredToken) {
			errMsg = "token expired"
		}
		// validation failures are a normal response, not a service error
		return ValidateTokenResponse{Valid: false, Error: errMsg}, nil
	}
	return ValidateTokenResponse{Valid: true, Actor: actor}, nil
}

func (m *Module) handleResolveSession(ctx context.Context, req ResolveSessionRequest, _ *mono.Msg) (ResolveSessionResponse, error) {
	actor, err := m.service.ResolveSession(ctx, req.SessionID)
	if err != nil {
		return ResolveSessionResponse{}, err
	}
	return ResolveSessionResponse{Actor: actor}, nil
}

// lazySessionStore forwards to the module's current store, which is swapped
// for the kv-backed one on Start.
type lazySessionStore struct {
	m *Module
}

func (s *lazySessionStore) Save(ctx context.Context, session *Session) error {
	return s.m.sessions.Save(ctx, session)
}

func (s *lazySessionStore) Load(ctx context.Context, id string) (*Session, error) {
	return s.m.sessions.Load(ctx, id)
}

func (s *lazySessionStore) Delete(ctx context.Context, id string) error {
	return s.m.sessions.Delete(ctx, id)
}

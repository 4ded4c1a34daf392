package account

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/shop-monolith/domain/account"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActorPort resolves request credentials to actors.
// This is the port the HTTP layer uses to identify requesters.
type ActorPort interface {
	ValidateToken(ctx context.Context, token string) (*domain.Actor, error)
	ResolveSession(ctx context.Context, sessionID string) (*domain.Actor, error)
}

// ActorAdapter implements ActorPort using the service container.
type ActorAdapter struct {
	container mono.ServiceContainer
}

// NewActorAdapter creates a new ActorAdapter.
func NewActorAdapter(container mono.ServiceContainer) *ActorAdapter {
	return &ActorAdapter{container: container}
}

// ValidateToken validates an access token and returns its actor.
func (a *ActorAdapter) ValidateToken(ctx context.Context, token string) (*domain.Actor, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"validate-token",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("validate-token request failed: %w", err)
	}

	if !resp.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, resp.Error)
	}
	return resp.Actor, nil
}

// ResolveSession returns the actor of a session, nil when anonymous.
func (a *ActorAdapter) ResolveSession(ctx context.Context, sessionID string) (*domain.Actor, error) {
	req := ResolveSessionRequest{SessionID: sessionID}
	var resp ResolveSessionResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"resolve-session",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("resolve-session request failed: %w", err)
	}
	return resp.Actor, nil
}

package account

import (
	domain "github.com/example/shop-monolith/domain/account"
)

// ValidateTokenRequest represents a token validation request.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse represents a token validation response.
type ValidateTokenResponse struct {
	Valid bool          `json:"valid"`
	Actor *domain.Actor `json:"actor,omitempty"`
	Error string        `json:"error,omitempty"`
}

// ResolveSessionRequest asks for the actor behind a session cookie.
type ResolveSessionRequest struct {
	SessionID string `json:"session_id"`
}

// ResolveSessionResponse carries the actor of a signed-in session. Actor is
// nil for anonymous or unknown sessions.
type ResolveSessionResponse struct {
	Actor *domain.Actor `json:"actor,omitempty"`
}

package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"
	"github.com/puzpuzpuz/xsync/v3"
)

// SessionsBucket is the kv bucket holding sessions.
const SessionsBucket = "sessions"

// Session is server-side state keyed by the session cookie. A session with
// UserID 0 belongs to an anonymous visitor.
type Session struct {
	ID        string            `json:"id"`
	UserID    uint              `json:"user_id"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// SessionStore persists sessions.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	// Load returns nil, nil when the session does not exist or expired.
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// KVSessionStore keeps sessions in a kv-jetstream bucket.
type KVSessionStore struct {
	bucket kvjetstream.KVStoragePort
	now    func() time.Time
}

// NewKVSessionStore wraps the sessions bucket.
func NewKVSessionStore(bucket kvjetstream.KVStoragePort) *KVSessionStore {
	return &KVSessionStore{bucket: bucket, now: time.Now}
}

func (s *KVSessionStore) Save(_ context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.bucket.Delete(session.ID)
	}
	if err := s.bucket.Set(session.ID, data, ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *KVSessionStore) Load(_ context.Context, id string) (*Session, error) {
	data, err := s.bucket.Get(id)
	if err != nil {
		if errors.Is(err, kvjetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, nil
	}
	return &session, nil
}

func (s *KVSessionStore) Delete(_ context.Context, id string) error {
	err := s.bucket.Delete(id)
	if err != nil && !errors.Is(err, kvjetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// MemorySessionStore keeps sessions in process memory. It backs tests and
// runs without the kv plugin.
type MemorySessionStore struct {
	sessions *xsync.MapOf[string, Session]
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store. A nil now uses time.Now.
func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{
		sessions: xsync.NewMapOf[string, Session](),
		now:      now,
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	stored := *session
	stored.Values = make(map[string]string, len(session.Values))
	for k, v := range session.Values {
		stored.Values[k] = v
	}
	s.sessions.Store(session.ID, stored)
	return nil
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	session, ok := s.sessions.Load(id)
	if !ok {
		return nil, nil
	}
	if !s.now().Before(session.ExpiresAt) {
		s.sessions.Delete(id)
		return nil, nil
	}
	return &session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

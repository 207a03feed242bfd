// Package session tracks which issued access tokens are still live. A token
// is accepted only while its jti has a record here; logout deletes it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	pkgredis "github.com/angelmondragon/libraryhub-backend/pkg/redis"
	"github.com/google/uuid"
)

var errAccessIDRequired = errors.New("access id is required")

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string, userID uuid.UUID) (bool, error)
}

type record struct {
	UserID   uuid.UUID `json:"user_id"`
	OpenedAt time.Time `json:"opened_at"`
}

type Manager struct {
	store store
	key   func(accessID string) string
	ttl   time.Duration
	now   func() time.Time
}

var _ AccessSessionChecker = (*Manager)(nil)

// NewManager keeps sessions in Redis for as long as the tokens they back.
func NewManager(client *pkgredis.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.TokenTTL()
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Manager{store: client, key: client.AccessSessionKey, ttl: ttl, now: time.Now}, nil
}

// Open records a session for userID and returns the access ID to embed as
// the token's jti.
func (m *Manager) Open(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	payload, err := json.Marshal(record{UserID: userID, OpenedAt: m.now().UTC()})
	if err != nil {
		return "", err
	}
	accessID := uuid.NewString()
	if err := m.store.Set(ctx, m.key(accessID), string(payload), m.ttl); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return accessID, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errAccessIDRequired
	}
	return m.store.Del(ctx, m.key(accessID))
}

// HasSession is false for unknown or expired access IDs and for sessions
// opened by someone else.
func (m *Manager) HasSession(ctx context.Context, accessID string, userID uuid.UUID) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errAccessIDRequired
	}
	raw, err := m.store.Get(ctx, m.key(accessID))
	if errors.Is(err, pkgredis.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, fmt.Errorf("decoding session: %w", err)
	}
	return rec.UserID == userID, nil
}

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/divyanshdhote/server-actions/internal/logger"
)

// Policy holds session lifetimes.
type Policy struct {
	TTL         time.Duration // lifetime granted on issue and on each refresh
	UpdateAge   time.Duration // minimum age before a refresh is written
	AbsoluteTTL time.Duration // cap measured from CreatedAt
}

// Manager issues, validates and revokes sessions on top of a Store.
type Manager struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func NewManager(store Store, policy Policy) *Manager {
	if policy.AbsoluteTTL < policy.TTL {
		policy.AbsoluteTTL = policy.TTL
	}
	return &Manager{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// Issue creates a new session for the user.
func (m *Manager) Issue(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := Session{
		SessionID:         id,
		UserID:            userID,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(m.policy.TTL),
		AbsoluteExpiresAt: now.Add(m.policy.AbsoluteTTL),
		IPAddress:         ip,
		UserAgent:         userAgent,
	}

	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return &s, nil
}

// Validate loads the session and enforces expiry. A session older than
// UpdateAge has its expiry pushed forward, never past AbsoluteExpiresAt.
// It returns (nil, nil) when the session is unknown or expired.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	s, err := m.store.Get(ctx, sessionID)
	if err != nil || s == nil {
		return nil, err
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) || !now.Before(s.AbsoluteExpiresAt) {
		_ = m.store.Delete(ctx, sessionID)
		return nil, nil
	}

	if now.Sub(s.UpdatedAt) >= m.policy.UpdateAge {
		next := now.Add(m.policy.TTL)
		if next.After(s.AbsoluteExpiresAt) {
			next = s.AbsoluteExpiresAt
		}
		if next.After(s.ExpiresAt) {
			refreshed := *s
			refreshed.ExpiresAt = next
			refreshed.UpdatedAt = now
			if err := m.store.Update(ctx, refreshed); err != nil {
				// Keep the stored expiry; refresh on a later request.
				logger.Warn("session refresh failed", map[string]any{
					"error": err.Error(),
				})
				return s, nil
			}
			s = &refreshed
		}
	}

	return s, nil
}

// Revoke deletes the session. Unknown ids are not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, sessionID)
}

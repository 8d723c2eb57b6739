package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSessionIdleTimeout ends a visit after three hours without orders
const DefaultSessionIdleTimeout = 3 * time.Hour

type activeSession struct {
	id       string
	lastSeen time.Time
}

// SessionManager groups the orders a user places during one visit under a
// shared session id
type SessionManager struct {
	db       *gorm.DB
	idle     time.Duration
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*activeSession
}

// NewSessionManager creates a session manager. idle <= 0 uses the default.
// db may be nil, in which case sessions live in memory only.
func NewSessionManager(db *gorm.DB, idle time.Duration) *SessionManager {
	if idle <= 0 {
		idle = DefaultSessionIdleTimeout
	}
	return &SessionManager{
		db:       db,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*activeSession),
	}
}

// WithClock replaces the time source, for tests
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// CurrentSessionID returns the session the user's next order belongs to.
// A user who ordered within the idle window keeps their session, including
// across restarts, since the latest order in the window is consulted on a
// cache miss.
func (m *SessionManager) CurrentSessionID(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apperrors.NewValidationError("user id is required").WithField("user_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s, ok := m.sessions[userID]; ok && now.Sub(s.lastSeen) < m.idle {
		s.lastSeen = now
		return s.id, nil
	}

	id, err := m.recentSession(ctx, userID, now)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = "SES-" + uuid.NewString()
		log.Printf("SessionManager: Started session %s for user %s", id, userID)
	}
	m.sessions[userID] = &activeSession{id: id, lastSeen: now}
	return id, nil
}

func (m *SessionManager) recentSession(ctx context.Context, userID string, now time.Time) (string, error) {
	if m.db == nil {
		return "", nil
	}
	var ids []string
	err := m.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND created_at >= ?", userID, now.Add(-m.idle).UTC()).
		Order("created_at DESC").
		Limit(1).
		Pluck("session_id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("failed to look up recent session: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// ActiveSessions returns how many users hold a session that has not idled out
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for userID, s := range m.sessions {
		if now.Sub(s.lastSeen) >= m.idle {
			delete(m.sessions, userID)
			continue
		}
		n++
	}
	return n
}

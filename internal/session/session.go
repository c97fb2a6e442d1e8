// Package session holds authenticated dashboard sessions explicitly instead of
// in ambient process state.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/backend"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors returned by the session layer.
var (
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session")
)

const defaultTTL = 12 * time.Hour

// Store persists sessions between process runs.
type Store interface {
	SaveSession(ctx context.Context, session dashboard.Session) error
	// LoadSession returns ErrSessionNotFound when id is unknown.
	LoadSession(ctx context.Context, id string) (dashboard.Session, error)
	ListSessions(ctx context.Context) ([]dashboard.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// NewSession builds a session from a successful OTP verification.
//
// Expiry is read from the token's exp claim without verifying the signature;
// the backend verifies the token on every call. Tokens without exp expire
// after ttl.
func NewSession(verification backend.Verification, now time.Time, ttl time.Duration) (dashboard.Session, error) {
	token := strings.TrimSpace(verification.Token)
	if token == "" {
		return dashboard.Session{}, fmt.Errorf("%w: empty token", ErrInvalidSession)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	expiresAt := now.Add(ttl)
	if tokenExpiry, ok := expiryFromToken(token); ok {
		expiresAt = tokenExpiry
	}
	session := dashboard.Session{
		ID:            uuid.NewString(),
		Token:         token,
		Email:         verification.Email,
		Role:          verification.Role,
		UserID:        verification.UserID,
		ProfileExists: verification.ProfileExists,
		ExpiresAt:     expiresAt.UTC(),
	}
	if session.Expired(now) {
		return dashboard.Session{}, ErrSessionExpired
	}
	return session, nil
}

func expiryFromToken(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	expiration, err := claims.GetExpirationTime()
	if err != nil || expiration == nil {
		return time.Time{}, false
	}
	return expiration.Time, true
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the lifetime of sessions whose token carries no expiry.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(manager *Manager) {
		if ttl > 0 {
			manager.ttl = ttl
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) ManagerOption {
	return func(manager *Manager) {
		if now != nil {
			manager.now = now
		}
	}
}

// WithLogger wires a structured logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(manager *Manager) {
		if logger != nil {
			manager.logger = logger
		}
	}
}

// Manager caches live sessions in memory and persists them through a Store.
// Start loads persisted sessions and Stop writes them back.
type Manager struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	mu       sync.RWMutex
	sessions map[string]dashboard.Session
}

// NewManager wires a Manager over store.
func NewManager(store Store, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidSession)
	}
	manager := &Manager{
		store:    store,
		ttl:      defaultTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
		sessions: map[string]dashboard.Session{},
	}
	for _, option := range options {
		if option != nil {
			option(manager)
		}
	}
	return manager, nil
}

// Start loads persisted sessions, discarding expired ones.
func (manager *Manager) Start(ctx context.Context) error {
	persisted, err := manager.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	now := manager.now()
	loaded := make(map[string]dashboard.Session, len(persisted))
	expired := 0
	for _, session := range persisted {
		if session.Expired(now) {
			expired++
			if err := manager.store.DeleteSession(ctx, session.ID); err != nil {
				return fmt.Errorf("discard expired session: %w", err)
			}
			continue
		}
		loaded[session.ID] = session
	}
	manager.mu.Lock()
	manager.sessions = loaded
	manager.mu.Unlock()
	manager.logger.Info("sessions loaded", zap.Int("active", len(loaded)), zap.Int("expired", expired))
	return nil
}

// Stop persists every live session.
func (manager *Manager) Stop(ctx context.Context) error {
	manager.mu.RLock()
	live := make([]dashboard.Session, 0, len(manager.sessions))
	for _, session := range manager.sessions {
		live = append(live, session)
	}
	manager.mu.RUnlock()
	var saveErr error
	for _, session := range live {
		if err := manager.store.SaveSession(ctx, session); err != nil {
			saveErr = errors.Join(saveErr, err)
		}
	}
	manager.logger.Info("sessions saved", zap.Int("count", len(live)))
	return saveErr
}

// Create opens a session for a verified login and persists it.
func (manager *Manager) Create(ctx context.Context, verification backend.Verification) (dashboard.Session, error) {
	session, err := NewSession(verification, manager.now(), manager.ttl)
	if err != nil {
		return dashboard.Session{}, err
	}
	if err := manager.Replace(ctx, session); err != nil {
		return dashboard.Session{}, err
	}
	return session, nil
}

// Current returns the live session for id. Sessions opened by another
// process are read through from the store.
func (manager *Manager) Current(ctx context.Context, id string) (dashboard.Session, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return dashboard.Session{}, ErrSessionNotFound
	}
	manager.mu.RLock()
	session, ok := manager.sessions[trimmed]
	manager.mu.RUnlock()
	if !ok {
		loaded, err := manager.store.LoadSession(ctx, trimmed)
		if err != nil {
			return dashboard.Session{}, err
		}
		session = loaded
	}
	if session.Expired(manager.now()) {
		if err := manager.End(ctx, trimmed); err != nil {
			manager.logger.Warn("expired session cleanup failed", zap.String("session_id", trimmed), zap.Error(err))
		}
		return dashboard.Session{}, ErrSessionExpired
	}
	if !ok {
		manager.mu.Lock()
		manager.sessions[trimmed] = session
		manager.mu.Unlock()
	}
	return session, nil
}

// Replace stores session under its id, overwriting any previous value.
func (manager *Manager) Replace(ctx context.Context, session dashboard.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.Token) == "" {
		return fmt.Errorf("%w: id and token are required", ErrInvalidSession)
	}
	if err := manager.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	manager.mu.Lock()
	manager.sessions[session.ID] = session
	manager.mu.Unlock()
	return nil
}

// End forgets a session.
func (manager *Manager) End(ctx context.Context, id string) error {
	manager.mu.Lock()
	delete(manager.sessions, id)
	manager.mu.Unlock()
	if err := manager.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

package clan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "clanbridge/pkg/domain-errors"
)

const (
	loginAttempts = 3
	loginTimeout  = 90 * time.Second
)

// Session tracks whether the clan API is usable and owns re-authentication.
// Every component that talks to the clan service goes through it: callers
// check Alive before depending on the API and degrade instead of crashing.
type Session struct {
	api     API
	logger  *slog.Logger
	backoff time.Duration

	mu        sync.Mutex
	alive     bool
	resetting bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithBackoffUnit overrides the retry backoff unit, shrunk in tests.
func WithBackoffUnit(d time.Duration) SessionOption {
	return func(s *Session) { s.backoff = d }
}

// NewSession wraps an API client.
func NewSession(api API, opts ...SessionOption) *Session {
	s := &Session{
		api:     api,
		logger:  slog.Default(),
		backoff: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect logs in with up to three attempts and linearly increasing backoff
// between them. Credential rejection aborts immediately: retrying bad
// credentials only burns the lockout budget. On total failure the session is
// marked unusable and the bot keeps running with verification disabled.
func (s *Session) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		loginCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		err := s.api.Login(loginCtx)
		cancel()

		if err == nil {
			s.setAlive(true)
			s.logger.Info("clan API session established", "attempt", attempt)
			return nil
		}
		lastErr = err

		if dErrors.HasCode(err, dErrors.CodeExternalAuth) {
			s.logger.Error("clan API authentication failed, not retrying", "error", err)
			break
		}
		s.logger.Error("clan API login failed", "attempt", attempt, "error", err)

		if attempt < loginAttempts {
			wait := time.Duration(attempt) * s.backoff
			select {
			case <-ctx.Done():
				s.setAlive(false)
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	s.setAlive(false)
	return lastErr
}

// Alive reports whether the session believes the API is usable.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Clan fetches a roster snapshot. A rejected session marks the handle dead
// so dependent operations stop until a reset succeeds.
func (s *Session) Clan(ctx context.Context, tag string) (*Snapshot, error) {
	if !s.Alive() {
		return nil, dErrors.New(dErrors.CodeExternalTransient, "clan API session not established")
	}
	snap, err := s.api.Clan(ctx, tag)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExternalAuth) {
			s.setAlive(false)
		}
		return nil, err
	}
	return snap, nil
}

// ResetAsync re-establishes the session in the background. Only one reset
// runs at a time; concurrent triggers collapse into it.
func (s *Session) ResetAsync(ctx context.Context) {
	s.mu.Lock()
	if s.resetting {
		s.mu.Unlock()
		return
	}
	s.resetting = true
	s.alive = false
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.resetting = false
			s.mu.Unlock()
		}()
		if err := s.Connect(ctx); err != nil {
			s.logger.Error("clan API session reset failed", "error", err)
		}
	}()
}

func (s *Session) setAlive(alive bool) {
	s.mu.Lock()
	s.alive = alive
	s.mu.Unlock()
}

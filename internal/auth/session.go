package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/spec-kit/auth-service/internal/domain"
)

const sessionDataKey = "data"

// Sessions reads and writes SessionData through fiber's session store.
type Sessions struct {
	store *session.Store
}

// NewSessions wraps a fiber session store.
func NewSessions(store *session.Store) *Sessions {
	return &Sessions{store: store}
}

// Load returns the session data of the caller, or nil when the session is
// empty.
func (s *Sessions) Load(c *fiber.Ctx) (*domain.SessionData, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	raw, ok := sess.Get(sessionDataKey).(string)
	if !ok || raw == "" {
		return nil, nil
	}
	var data domain.SessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if data.UserID == "" {
		return nil, nil
	}
	return &data, nil
}

// For binds a transport to the current request.
func (s *Sessions) For(c *fiber.Ctx) *RequestSession {
	return &RequestSession{store: s.store, c: c}
}

// RequestSession is the session transport of a single request.
type RequestSession struct {
	store *session.Store
	c     *fiber.Ctx
}

// Save stores data in the caller's session, rotating the session id of an
// existing session.
func (r *RequestSession) Save(_ context.Context, data *domain.SessionData) error {
	sess, err := r.store.Get(r.c)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.Fresh() {
		if err := sess.Regenerate(); err != nil {
			return fmt.Errorf("regenerate session: %w", err)
		}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	sess.Set(sessionDataKey, string(encoded))
	if err := sess.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Destroy removes the caller's session and its cookie.
func (r *RequestSession) Destroy(_ context.Context) error {
	sess, err := r.store.Get(r.c)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := sess.Destroy(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
